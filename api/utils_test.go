package api

import (
	"sync/atomic"
	"testing"
	"time"
)

// resetTimestamps pins the shared counter to a known value for the test and
// restores it to zero afterwards.
func resetTimestamps(t *testing.T, value int64) {
	t.Helper()
	atomic.StoreInt64(&lastTimestamp, value)
	t.Cleanup(func() {
		atomic.StoreInt64(&lastTimestamp, 0)
	})
}

func TestNextTimestampRangeSequential(t *testing.T) {
	resetTimestamps(t, 0)

	start := nextTimestampRange(3)
	if start == 0 {
		t.Fatal("expected a non-zero range start")
	}
	if got := atomic.LoadInt64(&lastTimestamp); got != start+2 {
		t.Fatalf("counter should land on the last reserved value, got %d want %d", got, start+2)
	}
}

func TestNextTimestampRangeAdvancesPastLast(t *testing.T) {
	future := time.Now().Add(time.Second).UnixNano()
	resetTimestamps(t, future)

	start := nextTimestampRange(2)
	if start != future+1 {
		t.Fatalf("range must begin after the previous reservation, got %d want %d", start, future+1)
	}
	if got := atomic.LoadInt64(&lastTimestamp); got != future+2 {
		t.Fatalf("counter should land on the last reserved value, got %d want %d", got, future+2)
	}
}

func TestNextTimestampRangeZeroCount(t *testing.T) {
	resetTimestamps(t, 123)

	if start := nextTimestampRange(0); start != 0 {
		t.Fatalf("zero-width range should return zero, got %d", start)
	}
	if got := atomic.LoadInt64(&lastTimestamp); got != 123 {
		t.Fatalf("counter must stay untouched for a zero-width range, got %d", got)
	}
}
