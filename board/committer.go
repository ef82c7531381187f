package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"teamhub-api/domain"
)

const (
	defaultCommitTimeout = 30 * time.Second
	commitQueueDepth     = 64
)

// Committer turns committed mutation intents into remote writes. A single
// worker goroutine drains the queue, so two structural writes for the same
// board are never in flight at once; rapid successive drags queue behind
// each other instead of racing.
//
// Failures never reach the gesture path. A failed write triggers a full
// snapshot reload into the model; there is no retry and no partial patch.
type Committer struct {
	gw      Gateway
	model   *domain.Model
	actor   string
	logger  *log.Logger
	timeout time.Duration

	jobs      chan domain.Intent
	pending   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewCommitter starts the commit worker for one board session. actor is the
// session user, stamped onto move requests for activity attribution.
func NewCommitter(gw Gateway, model *domain.Model, actor string, logger *log.Logger) *Committer {
	if gw == nil {
		panic("board: gateway is required")
	}
	if model == nil {
		panic("board: model is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &Committer{
		gw:      gw,
		model:   model,
		actor:   actor,
		logger:  logger,
		timeout: defaultCommitTimeout,
		jobs:    make(chan domain.Intent, commitQueueDepth),
		done:    make(chan struct{}),
	}
	go c.worker()
	return c
}

// Submit hands a mutation intent to the commit worker. The caller does not
// observe the outcome; a failed write is repaired by reconciliation. An
// intent submitted after Close is dropped with a warning, never panicked.
func (c *Committer) Submit(intent domain.Intent) {
	c.pending.Add(1)
	if !c.trySend(intent) {
		c.pending.Done()
		c.logger.WithField("kind", intent.Kind).Warn("commit submitted after close, dropped")
	}
}

// trySend guards the queue send against a racing Close; the recover absorbs
// a send on the closed channel the same way the activity emitter does.
func (c *Committer) trySend(intent domain.Intent) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	select {
	case <-c.done:
		return false
	default:
	}
	c.jobs <- intent
	return true
}

// Drain blocks until every submitted intent has resolved, including any
// reconciliation it triggered. Intended for tests and graceful shutdown.
func (c *Committer) Drain() {
	c.pending.Wait()
}

// Close stops the worker after the queue empties. Submit and Close belong to
// the session's single driving goroutine; Close is idempotent.
func (c *Committer) Close() {
	c.closeOnce.Do(func() {
		c.pending.Wait()
		close(c.done)
		close(c.jobs)
	})
}

func (c *Committer) worker() {
	for intent := range c.jobs {
		if err := c.dispatch(intent); err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"board": intent.BoardID,
				"kind":  intent.Kind,
			}).Error("remote write failed, reloading board")
			c.reconcile(intent.BoardID)
		}
		c.pending.Done()
	}
}

func (c *Committer) dispatch(intent domain.Intent) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	switch intent.Kind {
	case domain.IntentReorderLanes:
		return c.gw.ReorderLanes(ctx, intent.BoardID, intent.OrderedIDs)
	case domain.IntentReorderItems:
		return c.gw.ReorderItems(ctx, intent.BoardID, intent.LaneID, intent.OrderedIDs)
	case domain.IntentMoveItem:
		return c.gw.MoveItem(ctx, domain.MoveItemRequest{
			BoardID:      intent.BoardID,
			ItemID:       intent.ItemID,
			ToLaneID:     intent.ToLaneID,
			OrderedIDs:   intent.OrderedIDs,
			FromLaneName: intent.FromLaneName,
			ToLaneName:   intent.ToLaneName,
			Actor:        c.actor,
		})
	default:
		c.logger.Errorf("unknown intent kind %q dropped", intent.Kind)
		return nil
	}
}

// reconcile replaces the local tree with the store's truth. When even the
// fetch fails the stale tree is kept; the next commit or an explicit
// Refresh gets another chance.
func (c *Committer) reconcile(boardID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snapshot, err := c.gw.FetchBoardWithData(ctx, boardID)
	if err != nil {
		c.logger.WithError(err).WithField("board", boardID).Error("reconcile fetch failed, keeping local tree")
		return
	}
	c.model.Replace(snapshot)
}
