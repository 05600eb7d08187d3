package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beemacro/beemacro/internal/event"
	"github.com/beemacro/beemacro/internal/pather"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/beemacro/beemacro/internal/utils"
)

// ErrHalted is returned from a checkpoint once a stop or a disconnect is pending.
var ErrHalted = errors.New("executor halted")

// TaskRunner executes one named task, usually a movement path.
type TaskRunner interface {
	Run(ctx context.Context, name string) error
}

// Reconnector brings the game session back after a disconnect.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

type ReconnectorFunc func(ctx context.Context) error

func (f ReconnectorFunc) Reconnect(ctx context.Context) error { return f(ctx) }

// Releaser lifts every input still held down.
type Releaser interface {
	ReleaseAll() error
}

// PathReconnector reconnects by running a named path. An empty name only resumes.
func PathReconnector(paths TaskRunner, name string) Reconnector {
	return ReconnectorFunc(func(ctx context.Context) error {
		if name == "" {
			return nil
		}
		return paths.Run(ctx, name)
	})
}

type SupervisorConfig struct {
	Name        string
	Tasks       []string
	CycleDelay  time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
}

// Stats is a snapshot of what the executor is doing.
type Stats struct {
	CurrentTask string
	Cycles      int
	Reconnects  int
	LastError   string
	StartedAt   time.Time
}

type Supervisor struct {
	cfg             SupervisorConfig
	cell            *runstate.Cell
	waiter          *utils.Waiter
	reconnectWaiter *utils.Waiter
	tasks           TaskRunner
	releaser        Releaser
	reconnector     Reconnector
	metrics         *Metrics
	logger          *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

type SupervisorOption func(*Supervisor)

func WithReconnector(r Reconnector) SupervisorOption {
	return func(s *Supervisor) {
		if r != nil {
			s.reconnector = r
		}
	}
}

func WithSupervisorMetrics(m *Metrics) SupervisorOption {
	return func(s *Supervisor) { s.metrics = m }
}

func NewSupervisor(cfg SupervisorConfig, cell *runstate.Cell, waiter *utils.Waiter, tasks TaskRunner, releaser Releaser, logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	if cfg.Name == "" {
		cfg.Name = "beemacro"
	}
	if waiter == nil {
		waiter = utils.NewWaiter(cell)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:             cfg,
		cell:            cell,
		waiter:          waiter,
		reconnectWaiter: ReconnectWaiter(cell, utils.WithClock(waiter.Clock()), utils.WithChunk(waiter.Chunk())),
		tasks:           tasks,
		releaser:        releaser,
		reconnector:     ReconnectorFunc(func(context.Context) error { return nil }),
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reconnectView hides Disconnected from the waits made while reconnecting, so only a stop
// request can cut them short.
type reconnectView struct {
	cell *runstate.Cell
}

func (v reconnectView) Get() runstate.State {
	if s := v.cell.Get(); s != runstate.Disconnected {
		return s
	}
	return runstate.Running
}

// ReconnectWaiter builds the waiter used by whatever runs during a reconnect.
func ReconnectWaiter(cell *runstate.Cell, opts ...utils.WaiterOption) *utils.Waiter {
	return utils.NewWaiter(reconnectView{cell: cell}, opts...)
}

// StopCheckpoint aborts a reconnect path once a stop is requested.
func StopCheckpoint(cell *runstate.Cell) func() error {
	return func() error {
		if cell.Get() == runstate.StopRequested {
			return ErrHalted
		}
		return nil
	}
}

func (s *Supervisor) Name() string { return s.cfg.Name }

func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Run is the executor loop. It owns every transition that acknowledges a request and
// returns once ctx is done, releasing whatever is still held.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("Executor started", slog.String("name", s.cfg.Name), slog.Any("tasks", s.cfg.Tasks))
	defer s.release()

	for {
		if ctx.Err() != nil {
			s.logger.Info("Executor shutting down")
			return nil
		}

		switch st := s.cell.Get(); st {
		case runstate.StartRequested, runstate.PauseRequested:
			s.acknowledge(st)
		case runstate.StopRequested:
			s.release()
			s.acknowledge(st)
		case runstate.Running:
			s.runCycle(ctx)
		case runstate.Disconnected:
			s.reconnect(ctx)
		default:
			s.idle()
		}
	}
}

// Checkpoint is the safe point between path steps: it acknowledges a pending pause, parks
// until resumed and reports ErrHalted once a stop or disconnect is pending.
func (s *Supervisor) Checkpoint() error {
	for {
		switch st := s.cell.Get(); st {
		case runstate.StartRequested, runstate.PauseRequested:
			s.acknowledge(st)
		case runstate.Paused:
			s.waiter.WaitWhilePaused()
		case runstate.StopRequested, runstate.Disconnected, runstate.Stopped:
			return ErrHalted
		default:
			return nil
		}
	}
}

func (s *Supervisor) idle() {
	s.waiter.Clock().Sleep(s.waiter.Chunk())
}

func (s *Supervisor) acknowledge(from runstate.State) {
	if to, ok := s.cell.Acknowledge(); ok {
		s.transitioned(from, to)
	}
}

func (s *Supervisor) transitioned(from, to runstate.State) {
	s.logger.Info("Run state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	if from == runstate.StartRequested && to == runstate.Running {
		s.mu.Lock()
		s.stats.StartedAt = s.waiter.Clock().Now()
		s.mu.Unlock()
	}
	event.Send(event.StateChanged(s.cfg.Name, from, to))
}

func (s *Supervisor) release() {
	if s.releaser == nil {
		return
	}
	if err := s.releaser.ReleaseAll(); err != nil {
		s.logger.Error("Failed releasing inputs", slog.Any("error", err))
	}
}

func (s *Supervisor) runCycle(ctx context.Context) {
	if len(s.cfg.Tasks) == 0 {
		s.idle()
		return
	}

	for _, task := range s.cfg.Tasks {
		if s.Checkpoint() != nil || ctx.Err() != nil {
			return
		}
		if err := s.runTask(ctx, task); err != nil && s.halted(err) {
			return
		}
	}

	s.mu.Lock()
	s.stats.Cycles++
	cycles := s.stats.Cycles
	s.mu.Unlock()
	s.metrics.cycleDone()
	s.logger.Info("Cycle finished", slog.Int("cycles", cycles))

	// A pause request cutting the delay short is acknowledged by the next loop iteration.
	s.waiter.Sleep(s.cfg.CycleDelay)
}

func (s *Supervisor) halted(err error) bool {
	return errors.Is(err, ErrHalted) || errors.Is(err, pather.ErrInterrupted) || s.waiter.IsHalting()
}

func (s *Supervisor) runTask(ctx context.Context, task string) error {
	s.setTask(task)
	defer s.setTask("")

	clock := s.waiter.Clock()
	start := clock.Now()
	s.logger.Info("Starting task", slog.String("task", task))
	event.Send(event.TaskStarted(event.Text(s.cfg.Name, "Starting "+task), task))

	taskCtx, cancel := s.waiter.Context(ctx)
	err := s.tasks.Run(taskCtx, task)
	cancel()
	elapsed := clock.Now().Sub(start)

	reason := event.FinishedOK
	switch {
	case err == nil:
		s.logger.Info("Task finished", slog.String("task", task), slog.Duration("elapsed", elapsed))
	case s.halted(err):
		reason = event.FinishedInterrupted
		s.logger.Info("Task interrupted", slog.String("task", task), slog.Duration("elapsed", elapsed))
	default:
		reason = event.FinishedError
		s.setError(err)
		s.release()
		s.logger.Error("Task failed", slog.String("task", task), slog.Any("error", err))
	}

	msg := fmt.Sprintf("Finished %s (%s) in %s", task, reason, elapsed.Round(time.Millisecond))
	event.Send(event.TaskFinished(event.Text(s.cfg.Name, msg), task, reason, elapsed))
	s.metrics.taskDone(task, reason)
	return err
}

// reconnect releases inputs and retries the reconnector until it succeeds, the operator
// takes over or the attempts run out, in which case the executor stops.
func (s *Supervisor) reconnect(ctx context.Context) {
	s.release()
	s.logger.Warn("Disconnected, reconnecting")
	event.Send(event.Text(s.cfg.Name, "Disconnected, reconnecting"))

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil || s.cell.Get() != runstate.Disconnected {
			return
		}

		err := s.reconnector.Reconnect(ctx)
		if s.cell.Get() != runstate.Disconnected {
			return
		}
		if err == nil {
			s.metrics.reconnect(true)
			s.mu.Lock()
			s.stats.Reconnects++
			s.mu.Unlock()
			if s.cell.CompareAndSwap(runstate.Disconnected, runstate.Running) {
				s.transitioned(runstate.Disconnected, runstate.Running)
			}
			return
		}

		s.metrics.reconnect(false)
		s.setError(err)
		s.release()
		s.logger.Error("Reconnect attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))

		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			s.logger.Error("Giving up reconnecting", slog.Int("attempts", attempt))
			event.Send(event.Text(s.cfg.Name, fmt.Sprintf("Reconnect failed after %d attempts, stopping", attempt)))
			if s.cell.CompareAndSwap(runstate.Disconnected, runstate.Stopped) {
				s.transitioned(runstate.Disconnected, runstate.Stopped)
			}
			return
		}

		if s.reconnectWaiter.Sleep(s.cfg.RetryDelay) == utils.Interrupted {
			return
		}
	}
}

func (s *Supervisor) setTask(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CurrentTask = task
}

func (s *Supervisor) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastError = err.Error()
}
