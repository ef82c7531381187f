package api

import (
	"context"

	"teamhub-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchBoardWithData(ctx context.Context, boardID string) (domain.Board, error)
	FetchUserRole(ctx context.Context, boardID, userID string) (domain.Role, error)
	ReorderLanes(ctx context.Context, boardID string, orderedLaneIDs []string) error
	ReorderItems(ctx context.Context, boardID, laneID string, orderedItemIDs []string) error
	MoveItem(ctx context.Context, req domain.MoveItemRequest) error
	CreateLane(ctx context.Context, boardID, name, actorID string) (domain.Lane, error)
	UpdateLane(ctx context.Context, boardID, laneID, name, actorID string) error
	DeleteLane(ctx context.Context, boardID, laneID, actorID string) error
	CreateItem(ctx context.Context, boardID, laneID, title, actorID string, position int) (domain.Item, error)
	UpdateItem(ctx context.Context, boardID, itemID string, upd domain.ItemPatch) error
	ArchiveItem(ctx context.Context, boardID, itemID, actorID string) error
	AddComment(ctx context.Context, boardID, itemID, authorID, body string) (domain.Comment, error)
	FetchComments(ctx context.Context, itemID string) ([]domain.Comment, error)
	FetchActivity(ctx context.Context, boardID string, limit int) ([]domain.ActivityRecord, error)
}

// NotFoundError is implemented by storage errors for entities that do not
// exist, so handlers can answer 404 instead of 500.
type NotFoundError interface {
	error
	NotFound()
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of repeated structural mutations.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails so the
	// client may retry.
	Remove(ctx context.Context, userID, key string) error
}
