package utils

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/beemacro/beemacro/internal/runstate"
)

const (
	// DefaultChunk bounds how long any wait can go without looking at the run state,
	// and therefore the worst-case latency of a stop or pause request.
	DefaultChunk     = 50 * time.Millisecond
	DefaultPausePoll = 50 * time.Millisecond

	precisionSpinThreshold = 20 * time.Millisecond
	minPrecisionSleep      = 100 * time.Microsecond
)

// StateReader is the read side of the run state cell.
type StateReader interface {
	Get() runstate.State
}

// Outcome tells the caller of a wait why it returned.
type Outcome int

const (
	// Completed means the full duration elapsed with no halt or pause request pending.
	Completed Outcome = iota
	// Interrupted means a stop or a disconnect was observed, the caller should unwind.
	Interrupted
	// PauseRequested means the operator asked for a pause; the caller should reach its
	// next safe point, acknowledge it and call WaitWhilePaused.
	PauseRequested
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	case PauseRequested:
		return "pause_requested"
	}
	return "unknown"
}

// Waiter implements the pause-aware wait primitives on top of a run state cell.
// A Waiter without a state never pauses and never stops.
type Waiter struct {
	state     StateReader
	clock     Clock
	chunk     time.Duration
	pausePoll time.Duration
}

type WaiterOption func(*Waiter)

func WithClock(c Clock) WaiterOption {
	return func(w *Waiter) {
		if c != nil {
			w.clock = c
		}
	}
}

func WithChunk(d time.Duration) WaiterOption {
	return func(w *Waiter) {
		if d > 0 {
			w.chunk = d
		}
	}
}

func WithPausePoll(d time.Duration) WaiterOption {
	return func(w *Waiter) {
		if d > 0 {
			w.pausePoll = d
		}
	}
}

func NewWaiter(state StateReader, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		state:     state,
		clock:     SystemClock{},
		chunk:     DefaultChunk,
		pausePoll: DefaultPausePoll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Waiter) Clock() Clock { return w.clock }

func (w *Waiter) Chunk() time.Duration { return w.chunk }

func (w *Waiter) read() (runstate.State, bool) {
	if w.state == nil {
		return 0, false
	}
	return w.state.Get(), true
}

func (w *Waiter) IsPaused() bool {
	s, ok := w.read()
	return ok && s == runstate.Paused
}

func (w *Waiter) IsStopped() bool {
	s, ok := w.read()
	return ok && s == runstate.StopRequested
}

// IsHalting is true for a stop request and for a disconnect, both end any wait early.
func (w *Waiter) IsHalting() bool {
	s, ok := w.read()
	return ok && (s == runstate.StopRequested || s == runstate.Disconnected)
}

// Poll is the non-blocking check performed at every chunk boundary.
func (w *Waiter) Poll() Outcome {
	s, ok := w.read()
	if !ok {
		return Completed
	}
	switch s {
	case runstate.StopRequested, runstate.Disconnected:
		return Interrupted
	case runstate.PauseRequested:
		return PauseRequested
	}
	return Completed
}

// WaitWhilePaused blocks while the executor is paused and reports whether a halt was
// observed, in which case the caller must unwind instead of resuming.
func (w *Waiter) WaitWhilePaused() bool {
	for w.IsPaused() {
		w.clock.Sleep(w.pausePoll)
	}
	return w.IsHalting()
}

func (w *Waiter) settle() Outcome {
	if w.IsPaused() && w.WaitWhilePaused() {
		return Interrupted
	}
	return w.Poll()
}

// Sleep is the cancellable replacement for time.Sleep. It sleeps in chunks and returns
// early on a halt or a pause request. The deadline is absolute: time spent paused counts.
func (w *Waiter) Sleep(d time.Duration) Outcome {
	if d <= 0 {
		return Completed
	}
	if w.WaitWhilePaused() {
		return Interrupted
	}

	now := w.clock.Now()
	end := now.Add(d)
	for now.Before(end) {
		if o := w.settle(); o != Completed {
			return o
		}
		w.clock.Sleep(min(w.chunk, end.Sub(now)))
		now = w.clock.Now()
	}

	return w.Poll()
}

// HighPrecisionSleep trades CPU for accuracy: it sleeps half of the remaining time while
// more than 20ms remain (never more than one chunk at once) and spins for the tail.
func (w *Waiter) HighPrecisionSleep(d time.Duration) Outcome {
	if d <= 0 {
		return Completed
	}
	if w.WaitWhilePaused() {
		return Interrupted
	}

	start := w.clock.Now()
	for {
		remaining := d - w.clock.Now().Sub(start)
		if remaining <= 0 {
			return Completed
		}
		if remaining > precisionSpinThreshold {
			w.clock.Sleep(min(max(remaining/2, minPrecisionSleep), w.chunk))
		} else {
			runtime.Gosched()
		}
		if o := w.settle(); o != Completed {
			return o
		}
	}
}

// Context derives a context that is cancelled once a halt is observed. The check runs
// every chunk on the wall clock.
func (w *Waiter) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if w.state == nil {
		return ctx, cancel
	}

	go func() {
		ticker := time.NewTicker(w.chunk)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if w.IsHalting() {
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}

var defaultWaiter atomic.Pointer[Waiter]

func init() {
	defaultWaiter.Store(NewWaiter(nil))
}

// SetRunState installs the session cell behind the package-level wait helpers.
// Called once at startup, before any task runs.
func SetRunState(cell *runstate.Cell, opts ...WaiterOption) {
	if cell == nil {
		defaultWaiter.Store(NewWaiter(nil, opts...))
		return
	}
	defaultWaiter.Store(NewWaiter(cell, opts...))
}

func DefaultWaiter() *Waiter { return defaultWaiter.Load() }

func IsPaused() bool { return DefaultWaiter().IsPaused() }

func IsStopped() bool { return DefaultWaiter().IsStopped() }

func WaitWhilePaused() bool { return DefaultWaiter().WaitWhilePaused() }

func Sleep(d time.Duration) Outcome { return DefaultWaiter().Sleep(d) }

func HighPrecisionSleep(d time.Duration) Outcome { return DefaultWaiter().HighPrecisionSleep(d) }
