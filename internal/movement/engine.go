package movement

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/beemacro/beemacro/internal/speed"
	"github.com/beemacro/beemacro/internal/utils"
)

const (
	// BaseSpeed is the distance, in game units, covered per game-second at a multiplier of 1.
	BaseSpeed = speed.BaseWalkSpeed
	// DefaultCutoffFactor bounds a compensated hold to this multiple of the requested
	// game-seconds, measured in wall-clock seconds.
	DefaultCutoffFactor = 1.2
	// TilesPerGameSecond converts tile counts used by paths into game-seconds.
	TilesPerGameSecond = 8.3

	driftDecay      = 0.9
	driftCorrection = 0.1
)

// Result describes a finished hold. It replaces the transient travel target state, which
// does not outlive the call.
type Result struct {
	Strategy Strategy
	Target   float64
	Distance float64
	Elapsed  time.Duration
	Samples  int
	Reason   Reason
	// DistanceError is Distance minus Target, recorded by the drift accumulator.
	DistanceError float64
}

// Step is handed to the step observer after every integration increment.
type Step struct {
	Elapsed   time.Duration
	Delta     time.Duration
	K         float64
	Increment float64
	Distance  float64
}

type StepObserver func(Step)

// Engine converts game-seconds of travel into a real hold duration by integrating the
// speed signal over wall-clock time.
type Engine struct {
	sampler        speed.Sampler
	waiter         *utils.Waiter
	clock          utils.Clock
	logger         *slog.Logger
	baseline       float64
	walkSpeed      float64
	cutoffFactor   float64
	sampleInterval time.Duration
	observer       StepObserver

	mu    sync.Mutex
	drift float64
}

type Option func(*Engine)

func WithBaseline(b float64) Option {
	return func(e *Engine) {
		if b > 0 {
			e.baseline = b
		}
	}
}

// WithWalkSpeed sets the absolute walk speed used by the uncompensated path.
func WithWalkSpeed(ws float64) Option {
	return func(e *Engine) {
		if ws > 0 {
			e.walkSpeed = ws
		}
	}
}

func WithCutoffFactor(f float64) Option {
	return func(e *Engine) {
		if f > 0 {
			e.cutoffFactor = f
		}
	}
}

// WithSampleInterval makes the engine sleep between samples instead of spinning.
func WithSampleInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.sampleInterval = d
		}
	}
}

func WithStepObserver(fn StepObserver) Option {
	return func(e *Engine) { e.observer = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source, by default the waiter's clock is used.
func WithClock(c utils.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func NewEngine(sampler speed.Sampler, waiter *utils.Waiter, opts ...Option) *Engine {
	if waiter == nil {
		waiter = utils.DefaultWaiter()
	}
	if sampler == nil {
		sampler = speed.Constant(1)
	}
	e := &Engine{
		sampler:      sampler,
		waiter:       waiter,
		clock:        waiter.Clock(),
		logger:       slog.Default(),
		baseline:     BaseSpeed,
		walkSpeed:    BaseSpeed,
		cutoffFactor: DefaultCutoffFactor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Holdable reports whether gameSeconds describes a hold at all. Non-positive and
// non-finite durations are skipped without touching any key.
func Holdable(gameSeconds float64) bool {
	return gameSeconds > 0 && !math.IsInf(gameSeconds, 0)
}

func (e *Engine) sample() float64 {
	return speed.Sanitize(e.sampler.SpeedMultiplier())
}

// Wait blocks while the character travels gameSeconds worth of baseline distance. It ends
// on distance reached, on the safety cutoff, or as soon as the run state asks for a halt
// or a pause.
func (e *Engine) Wait(gameSeconds float64, strategy Strategy) Result {
	res := Result{Strategy: strategy, Reason: Skipped}
	if !Holdable(gameSeconds) {
		return res
	}

	res.Target = e.baseline * gameSeconds
	cutoff := time.Duration(gameSeconds * e.cutoffFactor * float64(time.Second))

	var kPrev float64
	if strategy == Trapezoidal {
		kPrev = e.sample()
		res.Samples++
	}

	start := e.clock.Now()
	last := start
	res.Reason = Reached
	for res.Distance < res.Target {
		now := e.clock.Now()
		res.Elapsed = now.Sub(start)
		if res.Elapsed >= cutoff {
			res.Reason = Cutoff
			break
		}
		if o := e.waiter.Poll(); o != utils.Completed {
			res.Reason = reasonFor(o)
			break
		}

		k := e.sample()
		res.Samples++
		delta := now.Sub(last)
		rate := k
		if strategy == Trapezoidal {
			rate = (kPrev + k) / 2
		}
		inc := e.baseline * rate * delta.Seconds()
		res.Distance += inc
		last = now
		kPrev = k

		if e.observer != nil {
			e.observer(Step{Elapsed: res.Elapsed, Delta: delta, K: k, Increment: inc, Distance: res.Distance})
		}

		if e.sampleInterval > 0 {
			e.clock.Sleep(e.sampleInterval)
		} else {
			runtime.Gosched()
		}
	}

	res.DistanceError = res.Distance - res.Target
	if res.Reason == Reached || res.Reason == Cutoff {
		e.recordDrift(res.DistanceError)
	}

	e.logger.Debug("Timed movement finished",
		slog.String("strategy", strategy.String()),
		slog.String("reason", res.Reason.String()),
		slog.Float64("target", res.Target),
		slog.Float64("distance", res.Distance),
		slog.Duration("elapsed", res.Elapsed),
		slog.Int("samples", res.Samples),
	)

	return res
}

// FixedDuration is the uncompensated hold time for gameSeconds at the configured walk speed.
func (e *Engine) FixedDuration(gameSeconds float64) time.Duration {
	if !Holdable(gameSeconds) {
		return 0
	}
	return time.Duration(gameSeconds * e.baseline / e.walkSpeed * float64(time.Second))
}

// WaitFixed is the non-haste path: a pause-aware sleep of d*B/walkSpeed.
func (e *Engine) WaitFixed(gameSeconds float64) Result {
	res := Result{Reason: Skipped}
	d := e.FixedDuration(gameSeconds)
	if d <= 0 {
		return res
	}

	res.Target = e.baseline * gameSeconds
	start := e.clock.Now()
	o := e.waiter.Sleep(d)
	res.Elapsed = e.clock.Now().Sub(start)
	res.Reason = reasonFor(o)
	if res.Reason == Reached {
		res.Distance = res.Target
	} else {
		res.Distance = min(res.Target, e.walkSpeed*res.Elapsed.Seconds())
	}
	res.DistanceError = res.Distance - res.Target

	return res
}

// TilesToGameSeconds converts a tile count into game-seconds of travel.
func TilesToGameSeconds(tiles float64) float64 {
	if !Holdable(tiles) {
		return 0
	}
	return tiles / TilesPerGameSecond
}

// Drift returns the decayed distance error. It is kept for diagnostics only and never
// shortens or extends a target.
func (e *Engine) Drift() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drift
}

func (e *Engine) recordDrift(err float64) {
	e.mu.Lock()
	e.drift = e.drift*driftDecay + err*driftCorrection
	e.mu.Unlock()
}

func reasonFor(o utils.Outcome) Reason {
	switch o {
	case utils.Interrupted:
		return Interrupted
	case utils.PauseRequested:
		return PauseRequested
	}
	return Reached
}
