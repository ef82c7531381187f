package storage

import (
	"sort"
	"testing"
	"time"

	"teamhub-api/domain"
)

func TestDecodeItemEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"b1","RowKey":"i1","LaneId":"l1","Title":"Call lead",` +
		`"Description":"ask about renewal","DueDate":"2026-09-01T12:00:00Z","Priority":"high",` +
		`"Tags":"[\"sales\",\"q3\"]","Assignees":"[\"u1\"]",` +
		`"LinkedId":"lead-7","LinkedKind":"lead","LinkedStatus":"open","Archived":false,"Position":2}`)
	item, err := decodeItemEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.ID != "i1" || item.LaneID != "l1" || item.Title != "Call lead" {
		t.Fatalf("unexpected identity fields: %+v", item)
	}
	if item.Priority != domain.PriorityHigh || item.Position != 2 || item.Archived {
		t.Fatalf("unexpected attributes: %+v", item)
	}
	if item.DueDate == nil || !item.DueDate.Equal(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date: %v", item.DueDate)
	}
	if len(item.Tags) != 2 || item.Tags[0] != "sales" {
		t.Fatalf("unexpected tags: %v", item.Tags)
	}
	if item.Linked == nil || item.Linked.ID != "lead-7" || item.Linked.Kind != "lead" {
		t.Fatalf("unexpected linked record: %+v", item.Linked)
	}
}

func TestDecodeItemEntityBadDueDate(t *testing.T) {
	data := []byte(`{"PartitionKey":"b1","RowKey":"i1","LaneId":"l1","DueDate":"yesterday"}`)
	if _, err := decodeItemEntity(data); err == nil {
		t.Fatal("expected decode error for invalid due date")
	}
}

func TestEncodeItemEntityOmitsEmptyCollections(t *testing.T) {
	ent, err := encodeItemEntity("b1", domain.Item{ID: "i1", LaneID: "l1", Title: "Bare"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if ent.PartitionKey != "b1" || ent.RowKey != "i1" {
		t.Fatalf("unexpected keys: %+v", ent.Entity)
	}
	if ent.Tags != "" || ent.Assignees != "" || ent.DueDate != "" || ent.LinkedID != "" {
		t.Fatalf("expected optional columns to stay empty: %+v", ent)
	}
}

func TestDecodeActivityEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"b1","RowKey":"00-abc","ItemId":"i1","Actor":"u1",` +
		`"Action":"item-moved","Metadata":"{\"from\":\"Todo\",\"to\":\"Doing\"}",` +
		`"EventTime":"2026-08-28T10:00:00.5Z"}`)
	rec, err := decodeActivityEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.BoardID != "b1" || rec.ItemID != "i1" || rec.Action != domain.ActivityItemMoved {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Metadata["from"] != "Todo" || rec.Metadata["to"] != "Doing" {
		t.Fatalf("unexpected metadata: %v", rec.Metadata)
	}
	if rec.Timestamp.IsZero() {
		t.Fatal("expected event time to parse")
	}
}

func TestMoveActivityAcrossLanes(t *testing.T) {
	rec, ok := moveActivity(domain.MoveItemRequest{
		BoardID:      "b1",
		ItemID:       "i1",
		ToLaneID:     "l2",
		OrderedIDs:   []string{"i1"},
		FromLaneName: "Todo",
		ToLaneName:   "Doing",
		Actor:        "u1",
	})
	if !ok {
		t.Fatal("expected a record for a cross-lane move")
	}
	if rec.Action != domain.ActivityItemMoved {
		t.Fatalf("unexpected action: %q", rec.Action)
	}
	if rec.BoardID != "b1" || rec.ItemID != "i1" || rec.Actor != "u1" {
		t.Fatalf("unexpected identity fields: %+v", rec)
	}
	if rec.Metadata["from"] != "Todo" || rec.Metadata["to"] != "Doing" {
		t.Fatalf("unexpected metadata: %v", rec.Metadata)
	}
}

func TestMoveActivitySameLaneProducesNoRecord(t *testing.T) {
	_, ok := moveActivity(domain.MoveItemRequest{
		BoardID:      "b1",
		ItemID:       "i1",
		ToLaneID:     "l1",
		OrderedIDs:   []string{"i2", "i1"},
		FromLaneName: "Todo",
		ToLaneName:   "Todo",
		Actor:        "u1",
	})
	if ok {
		t.Fatal("expected no record when lane names match")
	}
}

func TestActivityRowKeysSortNewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	oldKey := activityRowKey(base)
	newKey := activityRowKey(base.Add(time.Minute))

	keys := []string{oldKey, newKey}
	sort.Strings(keys)
	if keys[0] != newKey {
		t.Fatalf("expected newer record to sort first, got %q before %q", keys[0], keys[1])
	}
}

func TestPositionActionsNumberSequentially(t *testing.T) {
	actions, err := positionActions("b1", []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("build actions: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
}
