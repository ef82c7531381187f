// Package board implements the drag-and-drop reordering engine for Team Hub
// boards: an in-memory ordered tree mutated optimistically by pointer
// gestures, an asynchronous committer pushing the resulting mutations to the
// remote store, and a reconciliation path that restores a known-good tree by
// full reload when a write fails.
package board

import (
	"context"

	"teamhub-api/domain"
)

// Gateway is the remote store boundary the engine commits through. Calls are
// made from the session's single committer goroutine, never concurrently.
type Gateway interface {
	FetchBoardWithData(ctx context.Context, boardID string) (domain.Board, error)
	FetchUserRole(ctx context.Context, boardID, userID string) (domain.Role, error)
	ReorderLanes(ctx context.Context, boardID string, orderedLaneIDs []string) error
	ReorderItems(ctx context.Context, boardID, laneID string, orderedItemIDs []string) error
	MoveItem(ctx context.Context, req domain.MoveItemRequest) error
}
