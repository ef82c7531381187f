package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"teamhub-api/domain"
)

type stubBackend struct {
	fetchBoardFn    func(ctx context.Context, boardID string) (domain.Board, error)
	fetchRoleFn     func(ctx context.Context, boardID, userID string) (domain.Role, error)
	reorderLanesFn  func(ctx context.Context, boardID string, ids []string) error
	reorderItemsFn  func(ctx context.Context, boardID, laneID string, ids []string) error
	moveItemFn      func(ctx context.Context, req domain.MoveItemRequest) error
	fetchActivityFn func(ctx context.Context, boardID string, limit int) ([]domain.ActivityRecord, error)
}

func (s *stubBackend) FetchBoardWithData(ctx context.Context, boardID string) (domain.Board, error) {
	if s.fetchBoardFn == nil {
		return domain.Board{}, errors.New("unexpected FetchBoardWithData call")
	}
	return s.fetchBoardFn(ctx, boardID)
}

func (s *stubBackend) FetchUserRole(ctx context.Context, boardID, userID string) (domain.Role, error) {
	if s.fetchRoleFn == nil {
		return "", errors.New("unexpected FetchUserRole call")
	}
	return s.fetchRoleFn(ctx, boardID, userID)
}

func (s *stubBackend) ReorderLanes(ctx context.Context, boardID string, ids []string) error {
	if s.reorderLanesFn == nil {
		return errors.New("unexpected ReorderLanes call")
	}
	return s.reorderLanesFn(ctx, boardID, ids)
}

func (s *stubBackend) ReorderItems(ctx context.Context, boardID, laneID string, ids []string) error {
	if s.reorderItemsFn == nil {
		return errors.New("unexpected ReorderItems call")
	}
	return s.reorderItemsFn(ctx, boardID, laneID, ids)
}

func (s *stubBackend) MoveItem(ctx context.Context, req domain.MoveItemRequest) error {
	if s.moveItemFn == nil {
		return errors.New("unexpected MoveItem call")
	}
	return s.moveItemFn(ctx, req)
}

func (s *stubBackend) CreateLane(ctx context.Context, boardID, name, actorID string) (domain.Lane, error) {
	return domain.Lane{}, errors.New("unexpected CreateLane call")
}

func (s *stubBackend) UpdateLane(ctx context.Context, boardID, laneID, name, actorID string) error {
	return errors.New("unexpected UpdateLane call")
}

func (s *stubBackend) DeleteLane(ctx context.Context, boardID, laneID, actorID string) error {
	return errors.New("unexpected DeleteLane call")
}

func (s *stubBackend) CreateItem(ctx context.Context, boardID, laneID, title, actorID string, position int) (domain.Item, error) {
	return domain.Item{}, errors.New("unexpected CreateItem call")
}

func (s *stubBackend) UpdateItem(ctx context.Context, boardID, itemID string, upd domain.ItemPatch) error {
	return errors.New("unexpected UpdateItem call")
}

func (s *stubBackend) ArchiveItem(ctx context.Context, boardID, itemID, actorID string) error {
	return errors.New("unexpected ArchiveItem call")
}

func (s *stubBackend) AddComment(ctx context.Context, boardID, itemID, authorID, body string) (domain.Comment, error) {
	return domain.Comment{}, errors.New("unexpected AddComment call")
}

func (s *stubBackend) FetchComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	return nil, errors.New("unexpected FetchComments call")
}

func (s *stubBackend) FetchActivity(ctx context.Context, boardID string, limit int) ([]domain.ActivityRecord, error) {
	if s.fetchActivityFn == nil {
		return nil, errors.New("unexpected FetchActivity call")
	}
	return s.fetchActivityFn(ctx, boardID, limit)
}

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func cachedBoard() domain.Board {
	return domain.Board{
		ID:    "b1",
		Name:  "Pipeline",
		Owner: "u-owner",
		Lanes: []domain.Lane{
			{ID: "l1", BoardID: "b1", Name: "Todo", Position: 0, Items: []domain.Item{
				{ID: "i1", LaneID: "l1", Title: "Call lead", Position: 0},
			}},
			{ID: "l2", BoardID: "b1", Name: "Done", Position: 1, Items: []domain.Item{}},
		},
	}
}

func TestCacheFetchBoardMissThenHit(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()
	expected := cachedBoard()

	var calls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(ctx context.Context, boardID string) (domain.Board, error) {
			calls++
			if boardID != "b1" {
				t.Fatalf("unexpected board id: %s", boardID)
			}
			return expected.Clone(), nil
		},
	}, client, time.Minute)

	board, err := cache.FetchBoardWithData(ctx, "b1")
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if !reflect.DeepEqual(board, expected) {
		t.Fatalf("unexpected board: %#v", board)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(boardCacheKey("b1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.FetchBoardWithData(ctx, "b1")
	if err != nil {
		t.Fatalf("fetch cached board: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached board: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached fetch to avoid backend, calls=%d", calls)
	}
}

func TestCacheFetchRoleMissThenHit(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubBackend{
		fetchRoleFn: func(ctx context.Context, boardID, userID string) (domain.Role, error) {
			calls++
			return domain.RoleAdmin, nil
		},
	}, client, time.Minute)

	role, err := cache.FetchUserRole(ctx, "b1", "u1")
	if err != nil {
		t.Fatalf("fetch role: %v", err)
	}
	if role != domain.RoleAdmin {
		t.Fatalf("unexpected role: %q", role)
	}
	if ttl := mr.TTL(roleCacheKey("b1", "u1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	again, err := cache.FetchUserRole(ctx, "b1", "u1")
	if err != nil {
		t.Fatalf("fetch cached role: %v", err)
	}
	if again != domain.RoleAdmin {
		t.Fatalf("unexpected cached role: %q", again)
	}
	if calls != 1 {
		t.Fatalf("expected cached fetch to avoid backend, calls=%d", calls)
	}
}

func TestCacheReorderEvictsBoardSnapshot(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	responses := []domain.Board{cachedBoard(), cachedBoard()}
	responses[1].Lanes[0].Name = "Renamed"
	var fetchCalls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(context.Context, string) (domain.Board, error) {
			res := responses[fetchCalls].Clone()
			fetchCalls++
			return res, nil
		},
		reorderLanesFn: func(ctx context.Context, boardID string, ids []string) error { return nil },
	}, client, time.Minute)

	if _, err := cache.FetchBoardWithData(ctx, "b1"); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}
	if !mr.Exists(boardCacheKey("b1")) {
		t.Fatalf("expected board cached after initial fetch")
	}

	if err := cache.ReorderLanes(ctx, "b1", []string{"l2", "l1"}); err != nil {
		t.Fatalf("reorder lanes: %v", err)
	}
	if mr.Exists(boardCacheKey("b1")) {
		t.Fatalf("board cache key should be evicted after reorder")
	}

	next, err := cache.FetchBoardWithData(ctx, "b1")
	if err != nil {
		t.Fatalf("post-reorder fetch: %v", err)
	}
	if next.Lanes[0].Name != "Renamed" {
		t.Fatalf("expected fresh snapshot after eviction, got %#v", next.Lanes[0])
	}
	if fetchCalls != 2 {
		t.Fatalf("expected 2 backend fetches, got %d", fetchCalls)
	}
}

func TestCacheMoveItemEvictsBoardSnapshot(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	if err := client.Set(ctx, boardCacheKey("b1"), []byte(`{"id":"b1"}`), time.Hour).Err(); err != nil {
		t.Fatalf("seed board cache: %v", err)
	}

	cache := NewCache(&stubBackend{
		moveItemFn: func(ctx context.Context, req domain.MoveItemRequest) error { return nil },
	}, client, time.Minute)

	err := cache.MoveItem(ctx, domain.MoveItemRequest{BoardID: "b1", ItemID: "i1", ToLaneID: "l2", OrderedIDs: []string{"i1"}})
	if err != nil {
		t.Fatalf("move item: %v", err)
	}
	if mr.Exists(boardCacheKey("b1")) {
		t.Fatalf("board cache key should be evicted after move")
	}
}

func TestCacheMutationErrorPreservesCache(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	if err := client.Set(ctx, boardCacheKey("b1"), []byte(`{"id":"b1"}`), time.Hour).Err(); err != nil {
		t.Fatalf("seed board cache: %v", err)
	}

	cache := NewCache(&stubBackend{
		reorderItemsFn: func(context.Context, string, string, []string) error {
			return errors.New("boom")
		},
	}, client, time.Minute)

	if err := cache.ReorderItems(ctx, "b1", "l1", []string{"i1"}); err == nil {
		t.Fatalf("expected reorder error")
	}
	if !mr.Exists(boardCacheKey("b1")) {
		t.Fatalf("board cache should remain on error")
	}
}

func TestCacheCorruptEntryFallsBackToBackend(t *testing.T) {
	_, client := testRedis(t)
	ctx := context.Background()

	if err := client.Set(ctx, boardCacheKey("b1"), []byte("{not json"), time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt cache: %v", err)
	}

	expected := cachedBoard()
	var calls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(context.Context, string) (domain.Board, error) {
			calls++
			return expected.Clone(), nil
		},
	}, client, time.Minute)

	board, err := cache.FetchBoardWithData(ctx, "b1")
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if !reflect.DeepEqual(board, expected) {
		t.Fatalf("unexpected board: %#v", board)
	}
	if calls != 1 {
		t.Fatalf("expected backend fallback, calls=%d", calls)
	}
}

func TestCacheDelegatesActivityReads(t *testing.T) {
	_, client := testRedis(t)
	ctx := context.Background()

	want := []domain.ActivityRecord{{BoardID: "b1", ItemID: "i1", Action: domain.ActivityItemMoved}}
	cache := NewCache(&stubBackend{
		fetchActivityFn: func(ctx context.Context, boardID string, limit int) ([]domain.ActivityRecord, error) {
			if boardID != "b1" || limit != 10 {
				t.Fatalf("unexpected arguments: %s %d", boardID, limit)
			}
			return want, nil
		},
	}, client, time.Minute)

	got, err := cache.FetchActivity(ctx, "b1", 10)
	if err != nil {
		t.Fatalf("fetch activity: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected records: %#v", got)
	}
}

func TestCacheNilRedisPassesThrough(t *testing.T) {
	ctx := context.Background()
	expected := cachedBoard()

	var calls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(context.Context, string) (domain.Board, error) {
			calls++
			return expected.Clone(), nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchBoardWithData(ctx, "b1"); err != nil {
			t.Fatalf("fetch board: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every fetch to hit the backend, calls=%d", calls)
	}
}
