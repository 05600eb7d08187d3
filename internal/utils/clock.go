package utils

import (
	"sync"
	"time"
)

// Clock is the time source behind every wait and timing loop.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// StepClock is a deterministic Clock for simulations: every Now call moves time forward
// by step and Sleep moves it forward by the requested duration without blocking.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, step: step}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *StepClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Peek returns the current simulated time without advancing it.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
