package engine

import "sync/atomic"

// Clock issues the seq stamped on every chunk result and action log entry.
// Seqs are shared by all workers of an engine, so they order chunks across
// concurrently processed batches as well as within one.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// ResumeClock returns a clock that continues after last, the highest seq
// already in the action log.
func ResumeClock(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Next issues a seq.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently issued seq.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
