package testutil

import (
	"sync"
	"time"
)

// StepClock is a thread-safe fake clock that advances by a fixed step on
// every read, so run reports get distinct, reproducible timestamps.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock starts at start. The first call to Now returns start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, step: step}
}

// Now returns the current time and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the next time Now will return, without advancing.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Epoch is the fixed start time used across tests.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
