package runstate

import "sync/atomic"

// Cell is a single-slot, last-writer-wins register holding the current State.
// Writes are never queued: rapid consecutive writes collapse to the latest one.
type Cell struct {
	v atomic.Int32
}

// NewCell returns a cell initialised to Stopped, the state of a fresh session.
func NewCell() *Cell {
	c := &Cell{}
	c.v.Store(int32(Stopped))
	return c
}

func (c *Cell) Get() State {
	return State(c.v.Load())
}

func (c *Cell) Set(s State) {
	c.v.Store(int32(s))
}

// CompareAndSwap writes next only if the cell still holds old.
func (c *Cell) CompareAndSwap(old, next State) bool {
	return c.v.CompareAndSwap(int32(old), int32(next))
}

// Acknowledge performs the executor side of a pending request at a safe point:
// StartRequested becomes Running, PauseRequested becomes Paused and StopRequested becomes Stopped.
// It returns the state the cell settled on and whether this call performed the transition.
// A controller write landing between the read and the swap wins and is reported back unchanged.
func (c *Cell) Acknowledge() (State, bool) {
	current := c.Get()
	var next State
	switch current {
	case StartRequested:
		next = Running
	case PauseRequested:
		next = Paused
	case StopRequested:
		next = Stopped
	default:
		return current, false
	}

	if c.CompareAndSwap(current, next) {
		return next, true
	}
	return c.Get(), false
}
