package testutil

import "time"

// FixedClock is a util.Clock that always returns the same instant, advanced
// manually by tests that need to observe ordering.
type FixedClock struct {
	t time.Time
}

// NewFixedClock returns a FixedClock starting at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the clock's current instant.
func (c *FixedClock) Now() time.Time {
	return c.t
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}
