// Package testutil provides deterministic helpers shared by harness runs
// and tests.
package testutil

import "sync"

// SeqClock is a thread-safe monotonic logical clock.
//
// Trace events are stamped with sequence numbers from Next(), never with
// wall-clock time, so the same scenario produces the same sequence values on
// every run.
type SeqClock struct {
	mu  sync.Mutex
	seq int64
}

// NewSeqClock creates a clock starting at 0; the first Next() returns 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next increments and returns the next sequence number.
func (c *SeqClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *SeqClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to 0 for test reuse.
func (c *SeqClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
