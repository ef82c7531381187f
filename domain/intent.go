package domain

import "time"

// IntentKind discriminates the structural mutations a drag gesture can
// produce.
type IntentKind string

const (
	IntentReorderLanes IntentKind = "reorder-lanes"
	IntentReorderItems IntentKind = "reorder-items"
	IntentMoveItem     IntentKind = "move-item"
)

// Intent is an ephemeral, non-persisted description of a requested
// structural change, carrying the minimal ordered-id lists needed to
// reconstruct the affected sequences in the backing store.
type Intent struct {
	Kind    IntentKind
	BoardID string

	// Reorder payloads.
	LaneID     string
	OrderedIDs []string

	// Move payload. OrderedIDs holds the destination lane's full
	// post-insertion order. Lane names are carried for human-readable
	// activity text, not for identity.
	ItemID       string
	ToLaneID     string
	FromLaneName string
	ToLaneName   string
}

// MoveItemRequest carries everything the remote store needs to commit a
// cross-lane move: the destination lane's full post-insertion order plus the
// human-readable lane names for the activity record.
type MoveItemRequest struct {
	BoardID      string
	ItemID       string
	ToLaneID     string
	OrderedIDs   []string
	FromLaneName string
	ToLaneName   string
	Actor        string
}

// ItemPatch carries the partial fields of an item update; nil leaves the
// stored value unchanged.
type ItemPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Priority    *Priority
	Tags        *[]string
	Assignees   *[]string
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil &&
		p.Priority == nil && p.Tags == nil && p.Assignees == nil
}
