package api

import (
	"sync/atomic"
	"time"
)

var (
	lastTimestamp int64
)

// nextTimestampRange reserves count strictly increasing nanosecond
// timestamps and returns the first. Used to stamp stream events so clients
// can order them even within the same wall-clock tick.
func nextTimestampRange(count int64) int64 {
	if count <= 0 {
		return 0
	}
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now+count-1) {
			return now
		}
	}
}

func nextTimestamp() int64 {
	return nextTimestampRange(1)
}
