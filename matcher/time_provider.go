package matcher

import (
	"sync"
	"time"
)

// TimeProvider supplies the clock used to stamp wait start times and report
// WaitError.Elapsed. Deadlines always run on real timers.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// ManualClock only moves when told to. It is safe for use from the waiting
// goroutine and the test goroutine at once.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func clockOrSystem(tp TimeProvider) TimeProvider {
	if tp == nil {
		return SystemClock{}
	}
	return tp
}
