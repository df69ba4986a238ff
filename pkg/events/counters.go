package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counters tracks router throughput. Totals are cumulative for the process
// lifetime; the events-per-second rate is computed over a window that
// resets hourly so a quiet night doesn't dilute the daytime rate forever.
type Counters struct {
	total     int64
	processed int64
	failed    int64

	mu          sync.Mutex
	windowStart time.Time
	windowCount int64
}

// NewCounters creates a counter set with the rate window opened at now.
func NewCounters() *Counters {
	return &Counters{windowStart: time.Now()}
}

// Published records an accepted event.
func (c *Counters) Published() {
	atomic.AddInt64(&c.total, 1)
}

// Processed records a successfully handled event.
func (c *Counters) Processed() {
	atomic.AddInt64(&c.processed, 1)

	c.mu.Lock()
	c.maybeResetLocked(time.Now())
	c.windowCount++
	c.mu.Unlock()
}

// Failed records a handler failure (one per attempt).
func (c *Counters) Failed() {
	atomic.AddInt64(&c.failed, 1)
}

// Totals returns cumulative total/processed/failed counts.
func (c *Counters) Totals() (total, processed, failed int64) {
	return atomic.LoadInt64(&c.total),
		atomic.LoadInt64(&c.processed),
		atomic.LoadInt64(&c.failed)
}

// EventsPerSecond returns the processing rate over the current window.
func (c *Counters) EventsPerSecond() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.maybeResetLocked(now)

	elapsed := now.Sub(c.windowStart).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(c.windowCount) / elapsed
}

func (c *Counters) maybeResetLocked(now time.Time) {
	if now.Sub(c.windowStart) >= time.Hour {
		c.windowStart = now
		c.windowCount = 0
	}
}
