package board

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"teamhub-api/domain"
)

// EntityKind says what a gesture is holding or hovering.
type EntityKind string

const (
	EntityItem EntityKind = "item"
	EntityLane EntityKind = "lane"
)

var (
	// ErrPermissionDenied means the caller's capabilities do not allow the
	// gesture; no optimistic change is shown in that case.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrGestureActive means DragStart was called while a drag is already in
	// progress.
	ErrGestureActive = errors.New("drag gesture already active")
)

// DropTarget identifies the entity currently under the pointer. Hovering an
// item sets both LaneID and ItemID; hovering a lane's empty area sets only
// LaneID.
type DropTarget struct {
	Kind   EntityKind
	LaneID string
	ItemID string
}

type dragPhase int

const (
	phaseIdle dragPhase = iota
	phaseDragging
)

// Coordinator translates pointer gesture events into model mutations and
// mutation intents. One coordinator serves one board session and is driven
// from a single goroutine; it is not safe for concurrent use, matching the
// single-threaded event model of the UI that feeds it.
type Coordinator struct {
	model   *domain.Model
	caps    domain.Capabilities
	commits *Committer
	logger  *log.Logger

	phase        dragPhase
	kind         EntityKind
	activeID     string
	originLaneID string
	originIndex  int

	// Last preview applied, so repeated dragOver events over the same spot
	// are cheap no-ops.
	lastLaneID string
	lastIndex  int
	hasPreview bool
}

// NewCoordinator builds the gesture state machine for one session.
func NewCoordinator(model *domain.Model, caps domain.Capabilities, commits *Committer, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{
		model:   model,
		caps:    caps,
		commits: commits,
		logger:  logger,
	}
}

// DragStart captures the dragged entity and transitions to dragging. It
// refuses the gesture outright when the caller lacks the capability, before
// any optimistic change is shown.
func (c *Coordinator) DragStart(kind EntityKind, id string) error {
	if c.phase != phaseIdle {
		return ErrGestureActive
	}

	switch kind {
	case EntityItem:
		if !c.caps.CanEditItems {
			return ErrPermissionDenied
		}
		laneID, idx := c.model.FindItem(id)
		if laneID == "" {
			return fmt.Errorf("drag start: item %s not on board", id)
		}
		c.originLaneID = laneID
		c.originIndex = idx
	case EntityLane:
		if !c.caps.CanManageLanes {
			return ErrPermissionDenied
		}
		idx := indexOf(c.model.LaneOrder(), id)
		if idx < 0 {
			return fmt.Errorf("drag start: lane %s not on board", id)
		}
		c.originLaneID = ""
		c.originIndex = idx
	default:
		return fmt.Errorf("drag start: unknown entity kind %q", kind)
	}

	c.phase = phaseDragging
	c.kind = kind
	c.activeID = id
	c.hasPreview = false
	return nil
}

// DragOver fires continuously while the pointer is over a lane or another
// item. For item drags whose candidate lane differs from the item's current
// lane it splices the item into the new position as a pure local preview; no
// remote call is made. Idempotent per unique (lane, index) pair.
func (c *Coordinator) DragOver(target DropTarget) {
	if c.phase != phaseDragging {
		return
	}
	if c.kind != EntityItem {
		// Lane order is committed at drop time; hovering produces no preview.
		return
	}
	if target.ItemID == c.activeID {
		return
	}

	laneID, index, ok := c.candidate(target)
	if !ok {
		return
	}
	if c.hasPreview && laneID == c.lastLaneID && index == c.lastIndex {
		return
	}
	c.lastLaneID = laneID
	c.lastIndex = index
	c.hasPreview = true

	currentLane, _ := c.model.FindItem(c.activeID)
	if laneID != currentLane {
		c.model.MoveItemPreview(c.activeID, currentLane, laneID, index)
	}
}

// DragEnd commits the gesture. A nil target means the pointer was released
// outside any valid drop zone: nothing is committed and the last preview is
// kept as-is; a genuine mismatch is only corrected if a later persistence
// call fails and forces a reload.
func (c *Coordinator) DragEnd(target *DropTarget) {
	if c.phase != phaseDragging {
		return
	}
	defer c.reset()

	if target == nil {
		return
	}

	if c.kind == EntityLane {
		c.endLaneDrag(*target)
		return
	}
	c.endItemDrag(*target)
}

func (c *Coordinator) endLaneDrag(target DropTarget) {
	order := c.model.LaneOrder()
	targetIdx := indexOf(order, target.LaneID)
	if targetIdx < 0 {
		return
	}

	next := moveBefore(order, c.activeID, targetIdx)
	if next == nil || equalOrder(order, next) {
		return
	}
	if err := c.model.ReorderLanes(next); err != nil {
		// The order list was computed from the model one call ago, so a
		// mismatch here is a bug, not user input.
		c.logger.WithError(err).Error("lane reorder rejected by model")
		return
	}
	c.commits.Submit(domain.Intent{
		Kind:       domain.IntentReorderLanes,
		BoardID:    c.model.BoardID(),
		OrderedIDs: next,
	})
}

func (c *Coordinator) endItemDrag(target DropTarget) {
	// Late dragOver events can be lost; fold the drop target in as a final
	// preview. Harmless when it matches the last one.
	c.DragOver(target)

	finalLane, _ := c.model.FindItem(c.activeID)
	if finalLane == "" {
		c.logger.Errorf("drag end: item %s vanished from board", c.activeID)
		return
	}

	if finalLane != c.originLaneID {
		c.commits.Submit(domain.Intent{
			Kind:         domain.IntentMoveItem,
			BoardID:      c.model.BoardID(),
			ItemID:       c.activeID,
			LaneID:       finalLane,
			ToLaneID:     finalLane,
			OrderedIDs:   c.model.ItemOrder(finalLane),
			FromLaneName: c.model.LaneName(c.originLaneID),
			ToLaneName:   c.model.LaneName(finalLane),
		})
		return
	}

	// Same-lane: compute the reorder implied by the drop target.
	order := c.model.ItemOrder(finalLane)
	var next []string
	if target.ItemID != "" && target.ItemID != c.activeID {
		idx := indexOf(order, target.ItemID)
		if idx < 0 {
			return
		}
		next = moveBefore(order, c.activeID, idx)
	} else {
		next = moveBefore(order, c.activeID, len(order))
	}
	if next == nil || equalOrder(order, next) {
		return
	}
	if err := c.model.ReorderWithinLane(finalLane, next); err != nil {
		c.logger.WithError(err).Error("item reorder rejected by model")
		return
	}
	c.commits.Submit(domain.Intent{
		Kind:       domain.IntentReorderItems,
		BoardID:    c.model.BoardID(),
		LaneID:     finalLane,
		OrderedIDs: next,
	})
}

// candidate resolves a hover target to (lane, insertion index). Hovering an
// item inserts before that item's current index; hovering a lane's empty
// area appends at the end.
func (c *Coordinator) candidate(target DropTarget) (string, int, bool) {
	if target.LaneID == "" {
		return "", 0, false
	}
	order := c.model.ItemOrder(target.LaneID)
	if order == nil {
		return "", 0, false
	}
	if target.ItemID != "" {
		idx := indexOf(order, target.ItemID)
		if idx < 0 {
			return "", 0, false
		}
		return target.LaneID, idx, true
	}
	return target.LaneID, len(order), true
}

func (c *Coordinator) reset() {
	c.phase = phaseIdle
	c.kind = ""
	c.activeID = ""
	c.originLaneID = ""
	c.originIndex = 0
	c.hasPreview = false
	c.lastLaneID = ""
	c.lastIndex = 0
}

// moveBefore removes id from the list and reinserts it before the element
// currently at targetIdx. targetIdx == len(order) appends. Returns nil when
// id is absent.
func moveBefore(order []string, id string, targetIdx int) []string {
	from := indexOf(order, id)
	if from < 0 {
		return nil
	}
	if targetIdx > from {
		targetIdx--
	}
	out := make([]string, 0, len(order))
	out = append(out, order[:from]...)
	out = append(out, order[from+1:]...)
	if targetIdx < 0 {
		targetIdx = 0
	}
	if targetIdx > len(out) {
		targetIdx = len(out)
	}
	out = append(out, "")
	copy(out[targetIdx+1:], out[targetIdx:])
	out[targetIdx] = id
	return out
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
