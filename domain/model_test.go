package domain

import (
	"errors"
	"testing"
)

func testBoard() Board {
	return Board{
		ID:   "b1",
		Name: "Launch",
		Lanes: []Lane{
			{ID: "todo", BoardID: "b1", Name: "Todo", Items: []Item{
				{ID: "a", LaneID: "todo", Title: "A"},
				{ID: "b", LaneID: "todo", Title: "B"},
				{ID: "c", LaneID: "todo", Title: "C"},
			}},
			{ID: "doing", BoardID: "b1", Name: "Doing", Items: []Item{
				{ID: "d", LaneID: "doing", Title: "D"},
			}},
			{ID: "done", BoardID: "b1", Name: "Done"},
		},
	}
}

func assertContiguous(t *testing.T, b Board) {
	t.Helper()
	for li, l := range b.Lanes {
		if l.Position != li {
			t.Fatalf("lane %s position = %d, want %d", l.ID, l.Position, li)
		}
		for ii, it := range l.Items {
			if it.Position != ii {
				t.Fatalf("item %s position = %d, want %d", it.ID, it.Position, ii)
			}
			if it.LaneID != l.ID {
				t.Fatalf("item %s lane ref = %s, want %s", it.ID, it.LaneID, l.ID)
			}
		}
	}
}

func assertSingleOwnership(t *testing.T, b Board) {
	t.Helper()
	seen := map[string]string{}
	for _, l := range b.Lanes {
		for _, it := range l.Items {
			if prev, ok := seen[it.ID]; ok {
				t.Fatalf("item %s present in lanes %s and %s", it.ID, prev, l.ID)
			}
			seen[it.ID] = l.ID
		}
	}
}

func TestReplaceRenumbersPositions(t *testing.T) {
	snap := testBoard()
	snap.Lanes[0].Items[0].Position = 7
	snap.Lanes[1].Position = 42

	m := NewModel(snap)
	tree := m.Tree()
	assertContiguous(t, tree)
}

func TestReplaceIsIdempotent(t *testing.T) {
	m := NewModel(testBoard())
	m.Replace(testBoard())
	first := m.Tree()
	m.Replace(testBoard())
	second := m.Tree()

	if len(first.Lanes) != len(second.Lanes) {
		t.Fatalf("lane count changed across identical replaces")
	}
	for i := range first.Lanes {
		if first.Lanes[i].ID != second.Lanes[i].ID || len(first.Lanes[i].Items) != len(second.Lanes[i].Items) {
			t.Fatalf("lane %d differs across identical replaces", i)
		}
		for j := range first.Lanes[i].Items {
			if first.Lanes[i].Items[j].ID != second.Lanes[i].Items[j].ID {
				t.Fatalf("item order differs across identical replaces")
			}
		}
	}
}

func TestTreeReturnsDeepCopy(t *testing.T) {
	m := NewModel(testBoard())
	tree := m.Tree()
	tree.Lanes[0].Items[0].Title = "mutated"
	tree.Lanes[0].Items = tree.Lanes[0].Items[:1]

	fresh := m.Tree()
	if fresh.Lanes[0].Items[0].Title != "A" || len(fresh.Lanes[0].Items) != 3 {
		t.Fatalf("model state leaked through Tree copy: %+v", fresh.Lanes[0])
	}
}

func TestMoveItemPreview(t *testing.T) {
	m := NewModel(testBoard())

	m.MoveItemPreview("b", "todo", "doing", 0)

	tree := m.Tree()
	assertContiguous(t, tree)
	assertSingleOwnership(t, tree)

	todo := tree.Lane("todo")
	doing := tree.Lane("doing")
	if got := todo.ItemIDs(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected todo order: %v", got)
	}
	if got := doing.ItemIDs(); len(got) != 2 || got[0] != "b" || got[1] != "d" {
		t.Fatalf("unexpected doing order: %v", got)
	}
	if doing.Items[0].LaneID != "doing" {
		t.Fatalf("moved item kept stale lane ref %s", doing.Items[0].LaneID)
	}
}

func TestMoveItemPreviewClampsIndex(t *testing.T) {
	m := NewModel(testBoard())

	m.MoveItemPreview("a", "todo", "doing", 99)
	if got := m.ItemOrder("doing"); got[len(got)-1] != "a" {
		t.Fatalf("expected a appended to doing, got %v", got)
	}

	m.MoveItemPreview("b", "todo", "done", -5)
	if got := m.ItemOrder("done"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected b at head of done, got %v", got)
	}
	assertContiguous(t, m.Tree())
}

func TestMoveItemPreviewSameLaneIsNoop(t *testing.T) {
	m := NewModel(testBoard())
	m.MoveItemPreview("a", "todo", "todo", 2)
	if got := m.ItemOrder("todo"); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("same-lane preview mutated order: %v", got)
	}
}

func TestMoveItemPreviewMissingItemPanics(t *testing.T) {
	m := NewModel(testBoard())
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for item absent from claimed lane")
		}
	}()
	m.MoveItemPreview("zz", "todo", "doing", 0)
}

func TestReorderWithinLane(t *testing.T) {
	m := NewModel(testBoard())
	if err := m.ReorderWithinLane("todo", []string{"c", "a", "b"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got := m.ItemOrder("todo"); got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected order: %v", got)
	}
	assertContiguous(t, m.Tree())
}

func TestReorderWithinLaneStaleSet(t *testing.T) {
	m := NewModel(testBoard())
	cases := [][]string{
		{"a", "b"},           // missing member
		{"a", "b", "c", "d"}, // foreign member
		{"a", "b", "zz"},     // unknown id
		{"a", "a", "b"},      // duplicate
	}
	for _, ids := range cases {
		if err := m.ReorderWithinLane("todo", ids); !errors.Is(err, ErrStaleOrder) {
			t.Fatalf("reorder %v: got %v, want ErrStaleOrder", ids, err)
		}
	}
	// Tree untouched after rejected reorders.
	if got := m.ItemOrder("todo"); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("rejected reorder mutated tree: %v", got)
	}
}

func TestReorderLanes(t *testing.T) {
	m := NewModel(testBoard())
	if err := m.ReorderLanes([]string{"done", "todo", "doing"}); err != nil {
		t.Fatalf("reorder lanes: %v", err)
	}
	tree := m.Tree()
	assertContiguous(t, tree)
	if got := tree.LaneIDs(); got[0] != "done" || got[1] != "todo" || got[2] != "doing" {
		t.Fatalf("unexpected lane order: %v", got)
	}

	if err := m.ReorderLanes([]string{"done", "todo"}); !errors.Is(err, ErrStaleOrder) {
		t.Fatalf("expected ErrStaleOrder for short list, got %v", err)
	}
}

func TestFindItem(t *testing.T) {
	m := NewModel(testBoard())
	if lane, idx := m.FindItem("c"); lane != "todo" || idx != 2 {
		t.Fatalf("FindItem(c) = %s/%d", lane, idx)
	}
	if lane, idx := m.FindItem("zz"); lane != "" || idx != -1 {
		t.Fatalf("FindItem(zz) = %s/%d, want empty", lane, idx)
	}
}
