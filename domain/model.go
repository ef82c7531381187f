package domain

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleOrder is returned when a reorder carries an id set that no longer
// matches the current membership of the sequence it targets. It signals a
// stale caller, not user error.
var ErrStaleOrder = errors.New("stale order: id set does not match current membership")

// Model holds the in-memory board tree and is its only mutation surface.
// All operations are synchronous and complete within the caller's turn;
// the mutex exists so that the committer's Replace after a failed write
// cannot interleave with a gesture mutation.
type Model struct {
	mu    sync.RWMutex
	board Board
}

// NewModel creates a model seeded with the given snapshot.
func NewModel(snapshot Board) *Model {
	m := &Model{}
	m.Replace(snapshot)
	return m
}

// Replace discards the current tree and installs a freshly loaded snapshot.
// It always succeeds and is the sole rollback mechanism after a failed
// remote write.
func (m *Model) Replace(snapshot Board) {
	clone := snapshot.Clone()
	renumber(&clone)

	m.mu.Lock()
	m.board = clone
	m.mu.Unlock()
}

// Tree returns a deep copy of the current board for rendering. Callers must
// not use it to mutate state.
func (m *Model) Tree() Board {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.board.Clone()
}

// MoveItemPreview splices the item out of its current lane and into the
// destination lane at targetIndex, clamped to [0, len]. Calling it with
// fromLaneID == toLaneID is a no-op; that case belongs to reorder. The item
// must currently live in fromLaneID and nowhere else; anything different is
// a programming error and panics.
func (m *Model) MoveItemPreview(itemID, fromLaneID, toLaneID string, targetIndex int) {
	if fromLaneID == toLaneID {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.board.Lane(fromLaneID)
	to := m.board.Lane(toLaneID)
	if from == nil || to == nil {
		panic(fmt.Sprintf("model: move preview references unknown lane (from=%s to=%s)", fromLaneID, toLaneID))
	}

	idx := -1
	for i := range from.Items {
		if from.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Sprintf("model: item %s not present in lane %s", itemID, fromLaneID))
	}
	for i := range to.Items {
		if to.Items[i].ID == itemID {
			panic(fmt.Sprintf("model: item %s already present in lane %s", itemID, toLaneID))
		}
	}

	item := from.Items[idx]
	from.Items = append(from.Items[:idx], from.Items[idx+1:]...)

	if targetIndex < 0 {
		targetIndex = 0
	}
	if targetIndex > len(to.Items) {
		targetIndex = len(to.Items)
	}
	item.LaneID = to.ID
	to.Items = append(to.Items, Item{})
	copy(to.Items[targetIndex+1:], to.Items[targetIndex:])
	to.Items[targetIndex] = item

	renumberLane(from)
	renumberLane(to)
}

// ReorderWithinLane replaces a lane's item order without changing
// membership. The id list must be a permutation of the lane's current
// items; otherwise ErrStaleOrder is returned and the tree is untouched.
func (m *Model) ReorderWithinLane(laneID string, orderedItemIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lane := m.board.Lane(laneID)
	if lane == nil {
		return fmt.Errorf("reorder lane %s: %w", laneID, ErrStaleOrder)
	}

	byID := make(map[string]Item, len(lane.Items))
	for _, it := range lane.Items {
		byID[it.ID] = it
	}
	if len(orderedItemIDs) != len(byID) {
		return fmt.Errorf("reorder lane %s: %w", laneID, ErrStaleOrder)
	}

	next := make([]Item, 0, len(orderedItemIDs))
	for _, id := range orderedItemIDs {
		it, ok := byID[id]
		if !ok {
			return fmt.Errorf("reorder lane %s: %w", laneID, ErrStaleOrder)
		}
		delete(byID, id)
		next = append(next, it)
	}

	lane.Items = next
	renumberLane(lane)
	return nil
}

// ReorderLanes applies the same contract as ReorderWithinLane at the board
// level.
func (m *Model) ReorderLanes(orderedLaneIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[string]Lane, len(m.board.Lanes))
	for _, l := range m.board.Lanes {
		byID[l.ID] = l
	}
	if len(orderedLaneIDs) != len(byID) {
		return fmt.Errorf("reorder board %s: %w", m.board.ID, ErrStaleOrder)
	}

	next := make([]Lane, 0, len(orderedLaneIDs))
	for _, id := range orderedLaneIDs {
		l, ok := byID[id]
		if !ok {
			return fmt.Errorf("reorder board %s: %w", m.board.ID, ErrStaleOrder)
		}
		delete(byID, id)
		next = append(next, l)
	}

	m.board.Lanes = next
	renumber(&m.board)
	return nil
}

// FindItem reports the lane holding the item and its index there, or
// ("", -1) when absent.
func (m *Model) FindItem(itemID string) (laneID string, index int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.board.Lanes {
		for i, it := range l.Items {
			if it.ID == itemID {
				return l.ID, i
			}
		}
	}
	return "", -1
}

// LaneOrder returns the current ordered lane id list.
func (m *Model) LaneOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.board.LaneIDs()
}

// ItemOrder returns the current ordered item id list of a lane, or nil when
// the lane is unknown.
func (m *Model) ItemOrder(laneID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lane := m.board.Lane(laneID)
	if lane == nil {
		return nil
	}
	return lane.ItemIDs()
}

// LaneName returns the display name of a lane, or "" when unknown.
func (m *Model) LaneName(laneID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lane := m.board.Lane(laneID)
	if lane == nil {
		return ""
	}
	return lane.Name
}

// BoardID returns the id of the board currently held.
func (m *Model) BoardID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.board.ID
}

func renumber(b *Board) {
	for i := range b.Lanes {
		b.Lanes[i].Position = i
		renumberLane(&b.Lanes[i])
	}
}

func renumberLane(l *Lane) {
	for i := range l.Items {
		l.Items[i].Position = i
	}
}
