package action

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/beemacro/beemacro/internal/game"
	"github.com/beemacro/beemacro/internal/movement"
	"github.com/beemacro/beemacro/internal/utils"
)

const (
	// PressDuration is how long a plain key press is held.
	PressDuration = 20 * time.Millisecond

	modeFixed = "fixed"
)

type holdConfig struct {
	compensate bool
	strategy   movement.Strategy
}

type HoldOption func(*holdConfig)

// Uncompensated holds for the fixed walk-speed duration even when haste compensation is
// enabled in the profile.
func Uncompensated() HoldOption {
	return func(c *holdConfig) { c.compensate = false }
}

// WithStrategy overrides the profile's integration strategy for a single hold.
func WithStrategy(s movement.Strategy) HoldOption {
	return func(c *holdConfig) { c.strategy = s }
}

// Walker brackets timed key holds: assert, hold, release. Releases are deferred so a
// halt, a pause request or a failed assertion never leaves a key down.
type Walker struct {
	kb           game.Keyboard
	engine       *movement.Engine
	waiter       *utils.Waiter
	logger       *slog.Logger
	metrics      *Metrics
	compensation bool
	strategy     movement.Strategy
}

type WalkerOption func(*Walker)

// WithCompensation mirrors the profile switch for haste compensation.
func WithCompensation(enabled bool) WalkerOption {
	return func(w *Walker) { w.compensation = enabled }
}

func WithDefaultStrategy(s movement.Strategy) WalkerOption {
	return func(w *Walker) { w.strategy = s }
}

func WithMetrics(m *Metrics) WalkerOption {
	return func(w *Walker) { w.metrics = m }
}

func WithLogger(l *slog.Logger) WalkerOption {
	return func(w *Walker) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWalker(kb game.Keyboard, engine *movement.Engine, waiter *utils.Waiter, opts ...WalkerOption) *Walker {
	if waiter == nil {
		waiter = utils.DefaultWaiter()
	}
	w := &Walker{
		kb:           kb,
		engine:       engine,
		waiter:       waiter,
		logger:       slog.Default(),
		compensation: true,
		strategy:     movement.Predictive,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HoldForDuration holds key for gameSeconds of travel.
func (w *Walker) HoldForDuration(key string, gameSeconds float64, opts ...HoldOption) (movement.Result, error) {
	return w.HoldMultiForDuration([]string{key}, gameSeconds, opts...)
}

// HoldMultiForDuration asserts keys in order, runs one shared hold and releases them in
// the same order. If an assertion fails, the keys already down are released and the
// failure is returned joined with any release failure.
func (w *Walker) HoldMultiForDuration(keys []string, gameSeconds float64, opts ...HoldOption) (res movement.Result, err error) {
	res = movement.Result{Reason: movement.Skipped}
	if !movement.Holdable(gameSeconds) || len(keys) == 0 {
		return res, nil
	}

	cfg := holdConfig{compensate: true, strategy: w.strategy}
	for _, opt := range opts {
		opt(&cfg)
	}

	asserted := make([]string, 0, len(keys))
	defer func() {
		if rerr := w.release(asserted); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	for _, k := range keys {
		if kerr := w.kb.KeyDown(k); kerr != nil {
			w.metrics.inputError("key_down")
			return res, fmt.Errorf("asserting %s (%d of %d): %w", k, len(asserted)+1, len(keys), kerr)
		}
		asserted = append(asserted, k)
	}

	start := w.waiter.Clock().Now()
	mode := modeFixed
	if cfg.compensate && w.compensation {
		mode = cfg.strategy.String()
		res = w.engine.Wait(gameSeconds, cfg.strategy)
	} else {
		res = w.engine.WaitFixed(gameSeconds)
	}
	held := w.waiter.Clock().Now().Sub(start)
	w.metrics.observeHold(mode, res, held)

	w.logger.Debug("Hold finished",
		slog.String("keys", strings.Join(keys, "+")),
		slog.Float64("game_seconds", gameSeconds),
		slog.String("mode", mode),
		slog.String("reason", res.Reason.String()),
		slog.Duration("held", held),
	)

	return res, nil
}

func (w *Walker) release(keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := w.kb.KeyUp(k); err != nil {
			w.metrics.inputError("key_up")
			errs = append(errs, fmt.Errorf("releasing %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// WalkTiles walks a distance expressed in tiles.
func (w *Walker) WalkTiles(key string, tiles float64, opts ...HoldOption) (movement.Result, error) {
	return w.HoldForDuration(key, movement.TilesToGameSeconds(tiles), opts...)
}

// PressFor holds a key for a wall-clock duration, independent of movement speed.
func (w *Walker) PressFor(key string, d time.Duration) (o utils.Outcome, err error) {
	if d <= 0 {
		return utils.Completed, nil
	}
	if err := w.kb.KeyDown(key); err != nil {
		w.metrics.inputError("key_down")
		return utils.Completed, fmt.Errorf("asserting %s: %w", key, err)
	}
	defer func() {
		if rerr := w.release([]string{key}); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	return w.waiter.HighPrecisionSleep(d), nil
}
