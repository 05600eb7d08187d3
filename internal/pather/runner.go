package pather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/beemacro/beemacro/internal/action"
	"github.com/beemacro/beemacro/internal/movement"
	"github.com/beemacro/beemacro/internal/utils"
)

// ErrInterrupted is returned when a halt cut a step short.
var ErrInterrupted = errors.New("path interrupted")

// Mover is the subset of the hold sequencer a path needs.
type Mover interface {
	HoldForDuration(key string, gameSeconds float64, opts ...action.HoldOption) (movement.Result, error)
	HoldMultiForDuration(keys []string, gameSeconds float64, opts ...action.HoldOption) (movement.Result, error)
	WalkTiles(key string, tiles float64, opts ...action.HoldOption) (movement.Result, error)
	PressFor(key string, d time.Duration) (utils.Outcome, error)
}

// Checkpoint runs between steps. It is where the executor acknowledges a pause request and
// blocks until resumed; a non-nil error aborts the path.
type Checkpoint func() error

type Runner struct {
	lib        *Library
	mover      Mover
	waiter     *utils.Waiter
	checkpoint Checkpoint
	logger     *slog.Logger
}

func NewRunner(lib *Library, mover Mover, waiter *utils.Waiter, checkpoint Checkpoint, logger *slog.Logger) *Runner {
	if waiter == nil {
		waiter = utils.DefaultWaiter()
	}
	if checkpoint == nil {
		checkpoint = func() error { return nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{lib: lib, mover: mover, waiter: waiter, checkpoint: checkpoint, logger: logger}
}

// Run executes the named path. A hold cut short by a pause request resumes for the rest
// of its distance once the checkpoint returns.
func (r *Runner) Run(ctx context.Context, name string) error {
	return r.run(ctx, name, nil)
}

func (r *Runner) run(ctx context.Context, name string, stack []string) error {
	if slices.Contains(stack, name) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, fmt.Sprint(stack), name)
	}
	if len(stack) >= MaxDepth {
		return fmt.Errorf("%w: %s", ErrTooDeep, name)
	}
	p, ok := r.lib.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, name)
	}

	stack = append(stack, name)
	opts := holdOptions(p)
	r.logger.Debug("Running path", slog.String("path", name), slog.Int("steps", len(p.Steps)), slog.Int("depth", len(stack)))

	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		interrupted, err := r.exec(ctx, step, opts, stack)
		if err != nil {
			return fmt.Errorf("path %s step %d (%s): %w", name, i+1, step.Kind(), err)
		}
		if interrupted {
			return fmt.Errorf("path %s step %d (%s): %w", name, i+1, step.Kind(), ErrInterrupted)
		}
		if err := r.checkpoint(); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) exec(ctx context.Context, s Step, opts []action.HoldOption, stack []string) (bool, error) {
	switch s.Kind() {
	case StepWalk:
		return r.hold(s.Walk.Seconds, func(gs float64) (movement.Result, error) {
			return r.mover.HoldForDuration(s.Walk.Key, gs, opts...)
		})
	case StepMultiWalk:
		return r.hold(s.MultiWalk.Seconds, func(gs float64) (movement.Result, error) {
			return r.mover.HoldMultiForDuration(s.MultiWalk.Keys, gs, opts...)
		})
	case StepTiles:
		first := true
		return r.hold(movement.TilesToGameSeconds(s.Tiles.Tiles), func(gs float64) (movement.Result, error) {
			if first {
				first = false
				return r.mover.WalkTiles(s.Tiles.Key, s.Tiles.Tiles, opts...)
			}
			return r.mover.HoldForDuration(s.Tiles.Key, gs, opts...)
		})
	case StepPress:
		hold := s.Press.Hold
		if hold == 0 {
			hold = action.PressDuration
		}
		o, err := r.mover.PressFor(s.Press.Key, hold)
		return o == utils.Interrupted, err
	case StepSleep:
		return r.waiter.Sleep(s.Sleep) == utils.Interrupted, nil
	case StepRun:
		return false, r.run(ctx, s.Run, stack)
	}
	return false, fmt.Errorf("%w: empty step", ErrInvalidStep)
}

// hold runs a timed step. A hold handed back on a pause request goes through the checkpoint
// and is then re-issued for the distance still missing, so a pause never shortens a walk.
func (r *Runner) hold(gameSeconds float64, do func(gameSeconds float64) (movement.Result, error)) (bool, error) {
	remaining := gameSeconds
	for {
		res, err := do(remaining)
		if err != nil || res.Reason != movement.PauseRequested {
			return res.Reason == movement.Interrupted, err
		}
		if err := r.checkpoint(); err != nil {
			return false, err
		}
		// Nobody acknowledged the pause, re-issuing would spin on the same request.
		if r.waiter.Poll() == utils.PauseRequested || res.Target <= 0 {
			return false, nil
		}

		remaining *= 1 - res.Distance/res.Target
		if !movement.Holdable(remaining) {
			return false, nil
		}
		r.logger.Debug("Resuming hold after pause", slog.Float64("game_seconds", remaining))
	}
}

func holdOptions(p *Path) []action.HoldOption {
	var opts []action.HoldOption
	if p.Strategy != nil {
		opts = append(opts, action.WithStrategy(*p.Strategy))
	}
	if p.Compensate != nil && !*p.Compensate {
		opts = append(opts, action.Uncompensated())
	}
	return opts
}
