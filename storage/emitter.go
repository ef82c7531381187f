package storage

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"teamhub-api/domain"
)

// ActivitySink receives activity records produced by board mutations.
type ActivitySink interface {
	WriteActivity(ctx context.Context, rec domain.ActivityRecord) error
}

// Emitter is a bounded worker pool that writes activity records off the
// mutation path. Emit never blocks past a short handoff window and never
// returns an error; records that cannot be handed off or written are logged
// and dropped. The audit log is best effort by contract.
type Emitter struct {
	sink   ActivitySink
	logger *log.Logger

	jobs           chan domain.ActivityRecord
	writeTimeout   time.Duration
	handoffTimeout time.Duration

	closeOnce sync.Once
	workerWG  sync.WaitGroup
}

// NewEmitter starts the worker pool. Worker count, buffer and timeouts are
// env-tunable for load testing.
func NewEmitter(sink ActivitySink, logger *log.Logger) *Emitter {
	if sink == nil {
		panic("storage.NewEmitter: sink is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	workers := emitterEnvInt("ACTIVITY_WORKERS", 4)
	buf := emitterEnvInt("ACTIVITY_BUFFER", 1024)
	e := &Emitter{
		sink:           sink,
		logger:         logger,
		jobs:           make(chan domain.ActivityRecord, buf),
		writeTimeout:   emitterEnvDur("ACTIVITY_WRITE_TIMEOUT", 30*time.Second),
		handoffTimeout: emitterEnvDur("ACTIVITY_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}
	for i := 0; i < workers; i++ {
		e.workerWG.Add(1)
		go e.worker(i)
	}
	logger.Infof("activity emitter started, workers: %d, buffer: %d", workers, buf)
	return e
}

// Emit hands a record to the pool. When the buffer is saturated past the
// handoff window the record is dropped with a warning.
func (e *Emitter) Emit(rec domain.ActivityRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if ok, closed := e.trySend(rec); ok {
		return
	} else if closed {
		e.logger.WithField("action", rec.Action).Warn("activity emitted after close, dropped")
		return
	}

	if e.handoffTimeout > 0 {
		timer := time.NewTimer(e.handoffTimeout)
		defer timer.Stop()
		if ok, closed := e.sendWithTimer(rec, timer.C); ok || closed {
			return
		}
	}
	e.logger.WithFields(log.Fields{"board": rec.BoardID, "action": rec.Action}).
		Warn("activity buffer saturated, record dropped")
}

// Close stops the workers after the buffered records drain.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.jobs)
	})
	e.workerWG.Wait()
}

func (e *Emitter) worker(id int) {
	defer e.workerWG.Done()
	for rec := range e.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
		err := e.sink.WriteActivity(ctx, rec)
		cancel()
		if err != nil {
			e.logger.Errorf("activity write failed, err: %v, board: %s, action: %s, worker: %d",
				err, rec.BoardID, rec.Action, id)
		}
	}
}

func (e *Emitter) trySend(rec domain.ActivityRecord) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case e.jobs <- rec:
		return true, false
	default:
		return false, false
	}
}

func (e *Emitter) sendWithTimer(rec domain.ActivityRecord, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case e.jobs <- rec:
		return true, false
	case <-timer:
		return false, false
	}
}

func emitterEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func emitterEnvDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
