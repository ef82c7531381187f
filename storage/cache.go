package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"teamhub-api/domain"
)

type backend interface {
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

// Cache wraps a storage backend with Redis-backed caching for board
// snapshots and role lookups. Every structural mutation evicts the board
// snapshot so the next reload reads through to the tables. Comments and
// activity are never cached; those calls delegate straight to the backend.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) FetchBoardWithData(ctx context.Context, boardID string) (domain.Board, error) {
	if board, ok := c.loadBoardFromCache(ctx, boardID); ok {
		return board, nil
	}

	board, err := c.base.FetchBoardWithData(ctx, boardID)
	if err != nil {
		return domain.Board{}, err
	}

	c.storeBoard(ctx, board)
	return board, nil
}

func (c *Cache) FetchUserRole(ctx context.Context, boardID, userID string) (domain.Role, error) {
	if role, ok := c.loadRoleFromCache(ctx, boardID, userID); ok {
		return role, nil
	}

	role, err := c.base.FetchUserRole(ctx, boardID, userID)
	if err != nil {
		return "", err
	}

	c.storeRole(ctx, boardID, userID, role)
	return role, nil
}

func (c *Cache) ReorderLanes(ctx context.Context, boardID string, orderedLaneIDs []string) error {
	if err := c.base.ReorderLanes(ctx, boardID, orderedLaneIDs); err != nil {
		return err
	}
	c.evictBoard(ctx, boardID)
	return nil
}

func (c *Cache) ReorderItems(ctx context.Context, boardID, laneID string, orderedItemIDs []string) error {
	if err := c.base.ReorderItems(ctx, boardID, laneID, orderedItemIDs); err != nil {
		return err
	}
	c.evictBoard(ctx, boardID)
	return nil
}

func (c *Cache) MoveItem(ctx context.Context, req domain.MoveItemRequest) error {
	if err := c.base.MoveItem(ctx, req); err != nil {
		return err
	}
	c.evictBoard(ctx, req.BoardID)
	return nil
}

func (c *Cache) CreateLane(ctx context.Context, boardID, name, actorID string) (domain.Lane, error) {
	lane, err := c.base.CreateLane(ctx, boardID, name, actorID)
	if err != nil {
		return domain.Lane{}, err
	}
	c.evictBoard(ctx, boardID)
	return lane, nil
}

func (c *Cache) UpdateLane(ctx context.Context, boardID, laneID, name, actorID string) error {
	if err := c.base.UpdateLane(ctx, boardID, laneID, name, actorID); err != nil {
		return err
	}
	c.evictBoard(ctx, boardID)
	return nil
}

func (c *Cache) DeleteLane(ctx context.Context, boardID, laneID, actorID string) error {
	if err := c.base.DeleteLane(ctx, boardID, laneID, actorID); err != nil {
		return err
	}
	c.evictBoard(ctx, boardID)
	return nil
}

func (c *Cache) CreateItem(ctx context.Context, boardID, laneID, title, actorID string, position int) (domain.Item, error) {
	item, err := c.base.CreateItem(ctx, boardID, laneID, title, actorID, position)
	if err != nil {
		return domain.Item{}, err
	}
	c.evictBoard(ctx, boardID)
	return item, nil
}

func (c *Cache) UpdateItem(ctx context.Context, boardID, itemID string, upd domain.ItemPatch) error {
	if err := c.base.UpdateItem(ctx, boardID, itemID, upd); err != nil {
		return err
	}
	c.evictBoard(ctx, boardID)
	return nil
}

func (c *Cache) ArchiveItem(ctx context.Context, boardID, itemID, actorID string) error {
	if err := c.base.ArchiveItem(ctx, boardID, itemID, actorID); err != nil {
		return err
	}
	c.evictBoard(ctx, boardID)
	return nil
}

func (c *Cache) AddComment(ctx context.Context, boardID, itemID, authorID, body string) (domain.Comment, error) {
	return c.base.AddComment(ctx, boardID, itemID, authorID, body)
}

func (c *Cache) FetchComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	return c.base.FetchComments(ctx, itemID)
}

func (c *Cache) FetchActivity(ctx context.Context, boardID string, limit int) ([]domain.ActivityRecord, error) {
	return c.base.FetchActivity(ctx, boardID, limit)
}

func (c *Cache) loadBoardFromCache(ctx context.Context, boardID string) (domain.Board, bool) {
	if c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		}
		return domain.Board{}, false
	}
	var board domain.Board
	if err := json.Unmarshal(data, &board); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		return domain.Board{}, false
	}
	return board, true
}

func (c *Cache) loadRoleFromCache(ctx context.Context, boardID, userID string) (domain.Role, bool) {
	if c.redis == nil {
		return "", false
	}
	val, err := c.redis.Get(ctx, roleCacheKey(boardID, userID)).Result()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, roleCacheKey(boardID, userID)).Err()
		}
		return "", false
	}
	return domain.NormalizeRole(val), true
}

func (c *Cache) storeBoard(ctx context.Context, board domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(board.ID), data, c.ttl).Err()
}

func (c *Cache) storeRole(ctx context.Context, boardID, userID string, role domain.Role) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, roleCacheKey(boardID, userID), string(role), c.ttl).Err()
}

func (c *Cache) evictBoard(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
}

// EvictRole drops a cached role, used when a membership changes.
func (c *Cache) EvictRole(ctx context.Context, boardID, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, roleCacheKey(boardID, userID)).Err()
}

func boardCacheKey(boardID string) string {
	return "board:" + boardID
}

func roleCacheKey(boardID, userID string) string {
	return "role:" + boardID + ":" + userID
}
