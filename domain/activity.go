package domain

import (
	"time"

	"github.com/bytedance/sonic"
)

// Activity action kinds written after successful structural mutations.
const (
	ActivityLaneCreated   = "lane-created"
	ActivityLaneRenamed   = "lane-renamed"
	ActivityLaneDeleted   = "lane-deleted"
	ActivityItemCreated   = "item-created"
	ActivityItemMoved     = "item-moved"
	ActivityItemArchived  = "item-archived"
	ActivityCommentAdded  = "comment-added"
	ActivityMemberChanged = "member-changed"
)

// ActivityRecord is an append-only audit fact describing a completed
// structural mutation. Records are never mutated or deleted by the engine.
type ActivityRecord struct {
	ID        string            `json:"id"`
	BoardID   string            `json:"boardId"`
	ItemID    string            `json:"itemId,omitempty"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ActivityEnvelope wraps a record for the fan-out queue so downstream
// consumers (digest emails, webhooks) see the same shape the table stores.
type ActivityEnvelope struct {
	BoardID string                 `json:"boardId"`
	Record  sonic.NoCopyRawMessage `json:"record"`
}

// Comment is a free-form note attached to an item. Adding one produces a
// comment-added activity record.
type Comment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
