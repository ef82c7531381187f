package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"teamhub-api/domain"
)

// transactionLimit is the Azure Tables cap on actions per batch.
const transactionLimit = 100

// ErrNotFound is returned when a requested entity does not exist. It carries
// a NotFound marker method so transport layers can map it without importing
// this package.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }
func (notFoundError) NotFound()     {}

// Tables names the tables the gateway persists into.
type Tables struct {
	Boards      string
	Lanes       string
	Items       string
	Memberships string
	Activity    string
	Comments    string
}

// Storage provides access to underlying persistence mechanisms: the board
// tables and the activity fan-out queue. Structural writes for one board go
// to a single partition, so a reorder or move commits as one transactional
// batch.
type Storage struct {
	boards      *aztables.Client
	lanes       *aztables.Client
	items       *aztables.Client
	memberships *aztables.Client
	activity    *aztables.Client
	comments    *aztables.Client
	fanout      *azqueue.QueueClient
	emitter     *Emitter
	logger      *log.Logger
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, fanoutQueue string, logger *log.Logger) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	fanout, err := azqueue.NewQueueClientFromConnectionString(connStr, fanoutQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Storage{
		boards:      svc.NewClient(tables.Boards),
		lanes:       svc.NewClient(tables.Lanes),
		items:       svc.NewClient(tables.Items),
		memberships: svc.NewClient(tables.Memberships),
		activity:    svc.NewClient(tables.Activity),
		comments:    svc.NewClient(tables.Comments),
		fanout:      fanout,
		logger:      logger,
	}
	s.emitter = NewEmitter(s, logger)
	return s, nil
}

// Close drains and stops the activity emitter.
func (s *Storage) Close() {
	if s.emitter != nil {
		s.emitter.Close()
	}
}

type boardEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Owner string `json:"Owner"`
}

type laneEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	Position int    `json:"Position"`
}

type itemEntity struct {
	aztables.Entity
	LaneID       string `json:"LaneId"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	DueDate      string `json:"DueDate"`
	Priority     string `json:"Priority"`
	Tags         string `json:"Tags"`
	Assignees    string `json:"Assignees"`
	LinkedID     string `json:"LinkedId"`
	LinkedKind   string `json:"LinkedKind"`
	LinkedStatus string `json:"LinkedStatus"`
	Archived     bool   `json:"Archived"`
	Position     int    `json:"Position"`
}

type membershipEntity struct {
	aztables.Entity
	Role string `json:"Role"`
}

type activityEntity struct {
	aztables.Entity
	ItemID    string `json:"ItemId"`
	Actor     string `json:"Actor"`
	Action    string `json:"Action"`
	Metadata  string `json:"Metadata"`
	EventTime string `json:"EventTime"`
}

type commentEntity struct {
	aztables.Entity
	BoardID   string `json:"BoardId"`
	Author    string `json:"Author"`
	Body      string `json:"Body"`
	CreatedAt string `json:"CreatedAt"`
}

func decodeItemEntity(data []byte) (domain.Item, error) {
	var ent itemEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Item{}, err
	}
	item := domain.Item{
		ID:          ent.RowKey,
		LaneID:      ent.LaneID,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		Archived:    ent.Archived,
		Position:    ent.Position,
	}
	if ent.DueDate != "" {
		due, err := time.Parse(time.RFC3339, ent.DueDate)
		if err != nil {
			return domain.Item{}, fmt.Errorf("item %s: invalid due date: %w", ent.RowKey, err)
		}
		item.DueDate = &due
	}
	if ent.Tags != "" {
		if err := json.Unmarshal([]byte(ent.Tags), &item.Tags); err != nil {
			return domain.Item{}, fmt.Errorf("item %s: invalid tags: %w", ent.RowKey, err)
		}
	}
	if ent.Assignees != "" {
		if err := json.Unmarshal([]byte(ent.Assignees), &item.Assignees); err != nil {
			return domain.Item{}, fmt.Errorf("item %s: invalid assignees: %w", ent.RowKey, err)
		}
	}
	if ent.LinkedID != "" {
		item.Linked = &domain.LinkedRecord{ID: ent.LinkedID, Kind: ent.LinkedKind, Status: ent.LinkedStatus}
	}
	return item, nil
}

func encodeItemEntity(boardID string, item domain.Item) (itemEntity, error) {
	ent := itemEntity{
		Entity:      aztables.Entity{PartitionKey: boardID, RowKey: item.ID},
		LaneID:      item.LaneID,
		Title:       item.Title,
		Description: item.Description,
		Priority:    string(item.Priority),
		Archived:    item.Archived,
		Position:    item.Position,
	}
	if item.DueDate != nil {
		ent.DueDate = item.DueDate.UTC().Format(time.RFC3339)
	}
	if len(item.Tags) > 0 {
		data, err := json.Marshal(item.Tags)
		if err != nil {
			return itemEntity{}, err
		}
		ent.Tags = string(data)
	}
	if len(item.Assignees) > 0 {
		data, err := json.Marshal(item.Assignees)
		if err != nil {
			return itemEntity{}, err
		}
		ent.Assignees = string(data)
	}
	if item.Linked != nil {
		ent.LinkedID = item.Linked.ID
		ent.LinkedKind = item.Linked.Kind
		ent.LinkedStatus = item.Linked.Status
	}
	return ent, nil
}

// FetchBoardWithData loads the board with its lanes and non-archived items,
// position-ordered. The board row, lanes and items are fetched concurrently.
func (s *Storage) FetchBoardWithData(ctx context.Context, boardID string) (domain.Board, error) {
	var (
		board domain.Board
		lanes []domain.Lane
		items []domain.Item
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ent, err := s.boards.GetEntity(gctx, boardID, boardID, nil)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("board %s: %w", boardID, ErrNotFound)
			}
			return err
		}
		var be boardEntity
		if err := json.Unmarshal(ent.Value, &be); err != nil {
			return err
		}
		board = domain.Board{ID: be.RowKey, Name: be.Name, Owner: be.Owner}
		return nil
	})
	g.Go(func() error {
		var err error
		lanes, err = s.fetchLanes(gctx, boardID)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.fetchItems(gctx, boardID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Board{}, err
	}

	byLane := make(map[string][]domain.Item, len(lanes))
	for _, it := range items {
		if it.Archived {
			continue
		}
		byLane[it.LaneID] = append(byLane[it.LaneID], it)
	}
	for i := range lanes {
		laneItems := byLane[lanes[i].ID]
		sort.SliceStable(laneItems, func(a, b int) bool { return laneItems[a].Position < laneItems[b].Position })
		lanes[i].Items = laneItems
		lanes[i].BoardID = boardID
		delete(byLane, lanes[i].ID)
	}
	for laneID, orphans := range byLane {
		s.logger.WithFields(log.Fields{"board": boardID, "lane": laneID, "items": len(orphans)}).
			Warn("items reference a missing lane, dropped from snapshot")
	}
	sort.SliceStable(lanes, func(a, b int) bool { return lanes[a].Position < lanes[b].Position })
	board.Lanes = lanes
	return board, nil
}

func (s *Storage) fetchLanes(ctx context.Context, boardID string) ([]domain.Lane, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.lanes.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lanes := []domain.Lane{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent laneEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			lanes = append(lanes, domain.Lane{
				ID:       ent.RowKey,
				BoardID:  ent.PartitionKey,
				Name:     ent.Name,
				Position: ent.Position,
			})
		}
	}
	return lanes, nil
}

func (s *Storage) fetchItems(ctx context.Context, boardID string) ([]domain.Item, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.items.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []domain.Item{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			item, err := decodeItemEntity(e)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// FetchUserRole returns the caller's role on the board, or the empty role
// when no membership exists. Absence is not an error; the permission gate
// turns it into an all-denied capability set.
func (s *Storage) FetchUserRole(ctx context.Context, boardID, userID string) (domain.Role, error) {
	ent, err := s.memberships.GetEntity(ctx, boardID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	var me membershipEntity
	if err := json.Unmarshal(ent.Value, &me); err != nil {
		return "", err
	}
	return domain.NormalizeRole(me.Role), nil
}

// ReorderLanes rewrites every lane's position to its index in the list,
// as transactional merge batches on the board partition.
func (s *Storage) ReorderLanes(ctx context.Context, boardID string, orderedLaneIDs []string) error {
	actions, err := positionActions(boardID, orderedLaneIDs)
	if err != nil {
		return err
	}
	return s.submitChunked(ctx, s.lanes, actions)
}

// ReorderItems rewrites every item's position to its index in the list.
// laneID scopes the error text; the id list is authoritative.
func (s *Storage) ReorderItems(ctx context.Context, boardID, laneID string, orderedItemIDs []string) error {
	actions, err := positionActions(boardID, orderedItemIDs)
	if err != nil {
		return err
	}
	if err := s.submitChunked(ctx, s.items, actions); err != nil {
		return fmt.Errorf("reorder items in lane %s: %w", laneID, err)
	}
	return nil
}

// MoveItem repoints the moved item at its destination lane and rewrites the
// destination's positions in one batch, then emits a moved activity record
// when the lane names differ. The activity write is best effort and never
// fails the move.
func (s *Storage) MoveItem(ctx context.Context, req domain.MoveItemRequest) error {
	actions := make([]aztables.TransactionAction, 0, len(req.OrderedIDs))
	for idx, itemID := range req.OrderedIDs {
		props := map[string]any{
			"PartitionKey": req.BoardID,
			"RowKey":       itemID,
			"Position":     idx,
		}
		if itemID == req.ItemID {
			props["LaneId"] = req.ToLaneID
		}
		data, err := json.Marshal(props)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     data,
		})
	}
	if err := s.submitChunked(ctx, s.items, actions); err != nil {
		return fmt.Errorf("move item %s: %w", req.ItemID, err)
	}

	if rec, ok := moveActivity(req); ok {
		s.writeActivityAsync(rec)
	}
	return nil
}

// moveActivity builds the audit record for a cross-lane move. A move between
// lanes with the same display name, like a plain reorder, produces no record.
func moveActivity(req domain.MoveItemRequest) (domain.ActivityRecord, bool) {
	if req.FromLaneName == req.ToLaneName {
		return domain.ActivityRecord{}, false
	}
	return domain.ActivityRecord{
		BoardID: req.BoardID,
		ItemID:  req.ItemID,
		Actor:   req.Actor,
		Action:  domain.ActivityItemMoved,
		Metadata: map[string]string{
			"from": req.FromLaneName,
			"to":   req.ToLaneName,
		},
	}, true
}

// CreateLane appends a lane at the end of the board.
func (s *Storage) CreateLane(ctx context.Context, boardID, name, actorID string) (domain.Lane, error) {
	existing, err := s.fetchLanes(ctx, boardID)
	if err != nil {
		return domain.Lane{}, err
	}
	lane := domain.Lane{
		ID:       uuid.NewString(),
		BoardID:  boardID,
		Name:     name,
		Position: len(existing),
		Items:    []domain.Item{},
	}
	data, err := json.Marshal(laneEntity{
		Entity:   aztables.Entity{PartitionKey: boardID, RowKey: lane.ID},
		Name:     lane.Name,
		Position: lane.Position,
	})
	if err != nil {
		return domain.Lane{}, err
	}
	if _, err := s.lanes.AddEntity(ctx, data, nil); err != nil {
		return domain.Lane{}, err
	}
	s.writeActivityAsync(domain.ActivityRecord{
		BoardID:  boardID,
		Actor:    actorID,
		Action:   domain.ActivityLaneCreated,
		Metadata: map[string]string{"lane": name},
	})
	return lane, nil
}

// UpdateLane renames a lane.
func (s *Storage) UpdateLane(ctx context.Context, boardID, laneID, name, actorID string) error {
	data, err := json.Marshal(map[string]any{
		"PartitionKey": boardID,
		"RowKey":       laneID,
		"Name":         name,
	})
	if err != nil {
		return err
	}
	if _, err := s.lanes.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("lane %s: %w", laneID, ErrNotFound)
		}
		return err
	}
	s.writeActivityAsync(domain.ActivityRecord{
		BoardID:  boardID,
		Actor:    actorID,
		Action:   domain.ActivityLaneRenamed,
		Metadata: map[string]string{"lane": name},
	})
	return nil
}

// DeleteLane removes a lane and archives every item it still holds. The
// items survive for audit but leave all active sequences. Surviving rows
// keep their stored positions, so a sequence may hold gaps after a delete;
// ordering only compares relative values, and the next reorder or snapshot
// install renumbers the lane contiguously.
func (s *Storage) DeleteLane(ctx context.Context, boardID, laneID, actorID string) error {
	items, err := s.fetchItems(ctx, boardID)
	if err != nil {
		return err
	}
	actions := make([]aztables.TransactionAction, 0)
	for _, it := range items {
		if it.LaneID != laneID || it.Archived {
			continue
		}
		data, err := json.Marshal(map[string]any{
			"PartitionKey": boardID,
			"RowKey":       it.ID,
			"Archived":     true,
		})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     data,
		})
	}
	if err := s.submitChunked(ctx, s.items, actions); err != nil {
		return fmt.Errorf("archive items of lane %s: %w", laneID, err)
	}

	if _, err := s.lanes.DeleteEntity(ctx, boardID, laneID, nil); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("lane %s: %w", laneID, ErrNotFound)
		}
		return err
	}
	s.writeActivityAsync(domain.ActivityRecord{
		BoardID:  boardID,
		Actor:    actorID,
		Action:   domain.ActivityLaneDeleted,
		Metadata: map[string]string{"lane": laneID},
	})
	return nil
}

// CreateItem attaches a new item to a lane at the given position.
func (s *Storage) CreateItem(ctx context.Context, boardID, laneID, title, actorID string, position int) (domain.Item, error) {
	if position < 0 {
		position = 0
	}
	item := domain.Item{
		ID:       uuid.NewString(),
		LaneID:   laneID,
		Title:    title,
		Position: position,
	}
	ent, err := encodeItemEntity(boardID, item)
	if err != nil {
		return domain.Item{}, err
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Item{}, err
	}
	if _, err := s.items.AddEntity(ctx, data, nil); err != nil {
		return domain.Item{}, err
	}
	s.writeActivityAsync(domain.ActivityRecord{
		BoardID:  boardID,
		ItemID:   item.ID,
		Actor:    actorID,
		Action:   domain.ActivityItemCreated,
		Metadata: map[string]string{"title": title},
	})
	return item, nil
}

// UpdateItem merges the provided fields into the stored item.
func (s *Storage) UpdateItem(ctx context.Context, boardID, itemID string, upd domain.ItemPatch) error {
	props := map[string]any{
		"PartitionKey": boardID,
		"RowKey":       itemID,
	}
	if upd.Title != nil {
		props["Title"] = *upd.Title
	}
	if upd.Description != nil {
		props["Description"] = *upd.Description
	}
	if upd.DueDate != nil {
		props["DueDate"] = upd.DueDate.UTC().Format(time.RFC3339)
	}
	if upd.Priority != nil {
		props["Priority"] = string(*upd.Priority)
	}
	if upd.Tags != nil {
		data, err := json.Marshal(*upd.Tags)
		if err != nil {
			return err
		}
		props["Tags"] = string(data)
	}
	if upd.Assignees != nil {
		data, err := json.Marshal(*upd.Assignees)
		if err != nil {
			return err
		}
		props["Assignees"] = string(data)
	}
	if upd.Empty() {
		return errors.New("item update had no fields")
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err := s.items.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		return err
	}
	return nil
}

// ArchiveItem flips the archived flag; the item leaves all active lane
// sequences but is retained for audit. Its position is not reclaimed, so
// the lane sequence may gap until the next reorder renumbers it; readers
// order by relative position and tolerate the gaps.
func (s *Storage) ArchiveItem(ctx context.Context, boardID, itemID, actorID string) error {
	data, err := json.Marshal(map[string]any{
		"PartitionKey": boardID,
		"RowKey":       itemID,
		"Archived":     true,
	})
	if err != nil {
		return err
	}
	if _, err := s.items.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		return err
	}
	s.writeActivityAsync(domain.ActivityRecord{
		BoardID: boardID,
		ItemID:  itemID,
		Actor:   actorID,
		Action:  domain.ActivityItemArchived,
	})
	return nil
}

// AddComment stores a comment on an item and logs the matching activity.
func (s *Storage) AddComment(ctx context.Context, boardID, itemID, authorID, body string) (domain.Comment, error) {
	comment := domain.Comment{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		Author:    authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(commentEntity{
		Entity:    aztables.Entity{PartitionKey: itemID, RowKey: comment.ID},
		BoardID:   boardID,
		Author:    comment.Author,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err := s.comments.AddEntity(ctx, data, nil); err != nil {
		return domain.Comment{}, err
	}
	s.writeActivityAsync(domain.ActivityRecord{
		BoardID: boardID,
		ItemID:  itemID,
		Actor:   authorID,
		Action:  domain.ActivityCommentAdded,
	})
	return comment, nil
}

// FetchComments returns all comments on an item, oldest first.
func (s *Storage) FetchComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	filter := "PartitionKey eq '" + itemID + "'"
	pager := s.comments.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	comments := []domain.Comment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			created, err := time.Parse(time.RFC3339, ent.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("comment %s: invalid created time: %w", ent.RowKey, err)
			}
			comments = append(comments, domain.Comment{
				ID:        ent.RowKey,
				ItemID:    ent.PartitionKey,
				Author:    ent.Author,
				Body:      ent.Body,
				CreatedAt: created,
			})
		}
	}
	sort.SliceStable(comments, func(a, b int) bool { return comments[a].CreatedAt.Before(comments[b].CreatedAt) })
	return comments, nil
}

// FetchActivity returns up to limit activity records for the board, newest
// first. Row keys are inverse-chronological so table order is feed order.
func (s *Storage) FetchActivity(ctx context.Context, boardID string, limit int) ([]domain.ActivityRecord, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	opts := &aztables.ListEntitiesOptions{Filter: &filter}
	if limit > 0 {
		top := int32(limit)
		opts.Top = &top
	}
	pager := s.activity.NewListEntitiesPager(opts)
	records := []domain.ActivityRecord{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			rec, err := decodeActivityEntity(e)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
	}
	return records, nil
}

func decodeActivityEntity(data []byte) (domain.ActivityRecord, error) {
	var ent activityEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.ActivityRecord{}, err
	}
	rec := domain.ActivityRecord{
		ID:      ent.RowKey,
		BoardID: ent.PartitionKey,
		ItemID:  ent.ItemID,
		Actor:   ent.Actor,
		Action:  ent.Action,
	}
	if ent.Metadata != "" {
		if err := json.Unmarshal([]byte(ent.Metadata), &rec.Metadata); err != nil {
			return domain.ActivityRecord{}, fmt.Errorf("activity %s: invalid metadata: %w", ent.RowKey, err)
		}
	}
	if ent.EventTime != "" {
		ts, err := time.Parse(time.RFC3339Nano, ent.EventTime)
		if err != nil {
			return domain.ActivityRecord{}, fmt.Errorf("activity %s: invalid event time: %w", ent.RowKey, err)
		}
		rec.Timestamp = ts
	}
	return rec, nil
}

// WriteActivity appends one record to the activity table and enqueues it on
// the fan-out queue. The queue write is advisory; only the table write can
// fail the call.
func (s *Storage) WriteActivity(ctx context.Context, rec domain.ActivityRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = activityRowKey(rec.Timestamp)
	}
	meta := ""
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		meta = string(data)
	}
	data, err := json.Marshal(activityEntity{
		Entity:    aztables.Entity{PartitionKey: rec.BoardID, RowKey: rec.ID},
		ItemID:    rec.ItemID,
		Actor:     rec.Actor,
		Action:    rec.Action,
		Metadata:  meta,
		EventTime: rec.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if _, err := s.activity.AddEntity(ctx, data, nil); err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	env, err := json.Marshal(domain.ActivityEnvelope{BoardID: rec.BoardID, Record: payload})
	if err != nil {
		return err
	}
	if _, err := s.fanout.EnqueueMessage(ctx, string(env), nil); err != nil {
		s.logger.WithError(err).WithField("board", rec.BoardID).Warn("activity fan-out enqueue failed")
	}
	return nil
}

// writeActivityAsync hands the record to the emitter pool. Activity logging
// is fire and forget; a failure is logged and the originating mutation still
// succeeds.
func (s *Storage) writeActivityAsync(rec domain.ActivityRecord) {
	s.emitter.Emit(rec)
}

// activityRowKey builds an inverse-chronological row key so listing the
// partition yields newest records first.
func activityRowKey(ts time.Time) string {
	return fmt.Sprintf("%020d-%s", math.MaxInt64-ts.UnixNano(), uuid.NewString())
}

func positionActions(partitionKey string, ids []string) ([]aztables.TransactionAction, error) {
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for idx, id := range ids {
		data, err := json.Marshal(map[string]any{
			"PartitionKey": partitionKey,
			"RowKey":       id,
			"Position":     idx,
		})
		if err != nil {
			return nil, err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     data,
		})
	}
	return actions, nil
}

func (s *Storage) submitChunked(ctx context.Context, client *aztables.Client, actions []aztables.TransactionAction) error {
	if len(actions) == 0 {
		return nil
	}
	for start := 0; start < len(actions); start += transactionLimit {
		end := start + transactionLimit
		if end > len(actions) {
			end = len(actions)
		}
		if _, err := client.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
