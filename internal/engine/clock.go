package engine

import "sync/atomic"

// Clock is the store's logical clock. Every dispatched action, lifecycle
// actions included, is stamped with a strictly increasing sequence number
// from it, so the action log has a total order that does not depend on
// wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Passes are serialized, so in practice only the draining goroutine calls
// Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start. Restoring a store
// from a snapshot uses it to continue the recorded sequence.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
