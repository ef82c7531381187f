package domain

import "time"

// Priority levels an item can carry. An empty string means unset.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// LinkedRecord points at an external CRM record attached to an item,
// e.g. a sales lead tracked outside the board.
type LinkedRecord struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status,omitempty"`
}

// Item is the unit of work tracked on a board.
type Item struct {
	ID          string        `json:"id"`
	LaneID      string        `json:"laneId"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
	Priority    Priority      `json:"priority,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Assignees   []string      `json:"assignees,omitempty"`
	Linked      *LinkedRecord `json:"linked,omitempty"`
	Archived    bool          `json:"archived,omitempty"`
	Position    int           `json:"position"`
}

// Lane is a named, ordered column of items within a board.
type Lane struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Items    []Item `json:"items"`
}

// Board is the top-level container of lanes for one workspace.
type Board struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Lanes []Lane `json:"lanes"`
}

// Clone returns a deep copy of the board tree.
func (b Board) Clone() Board {
	out := b
	out.Lanes = make([]Lane, len(b.Lanes))
	for i, l := range b.Lanes {
		out.Lanes[i] = l.Clone()
	}
	return out
}

// Clone returns a deep copy of the lane and its items.
func (l Lane) Clone() Lane {
	out := l
	out.Items = make([]Item, len(l.Items))
	for i, it := range l.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// Clone returns a copy of the item with no shared slices or pointers.
func (i Item) Clone() Item {
	out := i
	if i.DueDate != nil {
		due := *i.DueDate
		out.DueDate = &due
	}
	if i.Tags != nil {
		out.Tags = append([]string(nil), i.Tags...)
	}
	if i.Assignees != nil {
		out.Assignees = append([]string(nil), i.Assignees...)
	}
	if i.Linked != nil {
		linked := *i.Linked
		out.Linked = &linked
	}
	return out
}

// Lane returns the lane with the given id, or nil.
func (b *Board) Lane(laneID string) *Lane {
	for i := range b.Lanes {
		if b.Lanes[i].ID == laneID {
			return &b.Lanes[i]
		}
	}
	return nil
}

// ItemIDs returns the ordered item id list of the lane.
func (l *Lane) ItemIDs() []string {
	ids := make([]string, len(l.Items))
	for i, it := range l.Items {
		ids[i] = it.ID
	}
	return ids
}

// LaneIDs returns the ordered lane id list of the board.
func (b *Board) LaneIDs() []string {
	ids := make([]string, len(b.Lanes))
	for i, l := range b.Lanes {
		ids[i] = l.ID
	}
	return ids
}
