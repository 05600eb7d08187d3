package action

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/beemacro/beemacro/internal/movement"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/beemacro/beemacro/internal/speed"
	"github.com/beemacro/beemacro/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyboard struct {
	mu       sync.Mutex
	events   []string
	failDown map[string]error
	failUp   map[string]error
}

func (k *fakeKeyboard) KeyDown(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.failDown[key]; err != nil {
		return err
	}
	k.events = append(k.events, "down:"+key)
	return nil
}

func (k *fakeKeyboard) KeyUp(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.failUp[key]; err != nil {
		return err
	}
	k.events = append(k.events, "up:"+key)
	return nil
}

func (k *fakeKeyboard) Events() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.events...)
}

type countingSampler struct {
	mu    sync.Mutex
	k     float64
	calls int
}

func (s *countingSampler) SpeedMultiplier() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.k
}

func (s *countingSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func runningCell() *runstate.Cell {
	c := runstate.NewCell()
	c.Set(runstate.Running)
	return c
}

func simulatedWalker(kb *fakeKeyboard, sampler speed.Sampler, opts ...WalkerOption) *Walker {
	clock := utils.NewStepClock(time.Unix(0, 0), time.Millisecond)
	w := utils.NewWaiter(runningCell(), utils.WithClock(clock))
	e := movement.NewEngine(sampler, w, movement.WithWalkSpeed(35))
	return NewWalker(kb, e, w, opts...)
}

func TestNonPositiveHoldIsANoOp(t *testing.T) {
	kb := &fakeKeyboard{}
	sampler := &countingSampler{k: 1}
	w := simulatedWalker(kb, sampler)

	for _, d := range []float64{0, -2} {
		res, err := w.HoldMultiForDuration([]string{"w", "d"}, d)
		require.NoError(t, err)
		assert.Equal(t, movement.Skipped, res.Reason)
	}
	o, err := w.PressFor("e", 0)
	require.NoError(t, err)
	assert.Equal(t, utils.Completed, o)

	assert.Empty(t, kb.Events())
	assert.Zero(t, sampler.Calls())
}

func TestMultiHoldReleasesInAssertionOrder(t *testing.T) {
	kb := &fakeKeyboard{}
	w := simulatedWalker(kb, speed.Constant(1))

	res, err := w.HoldMultiForDuration([]string{"w", "a", "shift"}, 0.25)
	require.NoError(t, err)
	assert.Equal(t, movement.Reached, res.Reason)
	assert.Equal(t, []string{"down:w", "down:a", "down:shift", "up:w", "up:a", "up:shift"}, kb.Events())
}

func TestThirdOfFiveAssertionFailureReleasesTheFirstTwo(t *testing.T) {
	boom := errors.New("driver refused")
	kb := &fakeKeyboard{failDown: map[string]error{"c": boom}}
	sampler := &countingSampler{k: 1}
	w := simulatedWalker(kb, sampler)

	res, err := w.HoldMultiForDuration([]string{"a", "b", "c", "d", "e"}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "3 of 5")
	assert.Equal(t, movement.Skipped, res.Reason)

	assert.Equal(t, []string{"down:a", "down:b", "up:a", "up:b"}, kb.Events())
	assert.Zero(t, sampler.Calls(), "no hold may run after a failed assertion")
}

func TestReleaseFailuresAreJoined(t *testing.T) {
	assertErr := errors.New("assert failed")
	releaseErr := errors.New("release failed")
	kb := &fakeKeyboard{
		failDown: map[string]error{"s": assertErr},
		failUp:   map[string]error{"w": releaseErr},
	}
	w := simulatedWalker(kb, speed.Constant(1))

	_, err := w.HoldMultiForDuration([]string{"w", "a", "s"}, 1)
	assert.ErrorIs(t, err, assertErr)
	assert.ErrorIs(t, err, releaseErr)
	assert.Equal(t, []string{"down:w", "down:a", "up:a"}, kb.Events())
}

func TestUncompensatedPathUsesWalkSpeed(t *testing.T) {
	kb := &fakeKeyboard{}
	sampler := &countingSampler{k: 2}

	clock := utils.NewStepClock(time.Unix(0, 0), 0)
	waiter := utils.NewWaiter(runningCell(), utils.WithClock(clock))
	engine := movement.NewEngine(sampler, waiter, movement.WithWalkSpeed(35))
	w := NewWalker(kb, engine, waiter, WithCompensation(false))

	start := clock.Peek()
	res, err := w.HoldForDuration("s", 1)
	require.NoError(t, err)
	assert.Equal(t, movement.Reached, res.Reason)
	assert.Equal(t, 800*time.Millisecond, clock.Peek().Sub(start))
	assert.Zero(t, sampler.Calls())

	// Compensation enabled in the profile but not requested by the call.
	w = NewWalker(kb, engine, waiter)
	_, err = w.HoldForDuration("s", 1, Uncompensated())
	require.NoError(t, err)
	assert.Zero(t, sampler.Calls())
}

func TestHoldOnePointFiveGameSecondsOnTheWallClock(t *testing.T) {
	if testing.Short() {
		t.Skip("wall clock timing")
	}
	kb := &fakeKeyboard{}
	waiter := utils.NewWaiter(runningCell())
	engine := movement.NewEngine(speed.Constant(1), waiter, movement.WithSampleInterval(time.Millisecond))
	w := NewWalker(kb, engine, waiter)

	start := time.Now()
	res, err := w.HoldForDuration("w", 1.5)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, movement.Reached, res.Reason)
	assert.InDelta(t, 1.5, elapsed.Seconds(), 1.5*0.05)
	assert.Equal(t, []string{"down:w", "up:w"}, kb.Events())
}

func TestHaltMidHoldReleasesTheKey(t *testing.T) {
	kb := &fakeKeyboard{}
	cell := runningCell()
	waiter := utils.NewWaiter(cell)
	engine := movement.NewEngine(speed.Constant(1), waiter, movement.WithSampleInterval(time.Millisecond))
	w := NewWalker(kb, engine, waiter)

	go func() {
		time.Sleep(100 * time.Millisecond)
		cell.RequestRejoin()
	}()

	start := time.Now()
	res, err := w.HoldForDuration("d", 5)
	require.NoError(t, err)
	assert.Equal(t, movement.Interrupted, res.Reason)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"down:d", "up:d"}, kb.Events())
}

func TestPressForBracketsTheKey(t *testing.T) {
	kb := &fakeKeyboard{}
	w := simulatedWalker(kb, speed.Constant(1))

	o, err := w.PressFor("e", PressDuration)
	require.NoError(t, err)
	assert.Equal(t, utils.Completed, o)

	o, err = w.PressFor("r", 0)
	require.NoError(t, err)
	assert.Equal(t, utils.Completed, o)
	assert.Equal(t, []string{"down:e", "up:e"}, kb.Events())
}

func TestNonFiniteDurationsPressNothing(t *testing.T) {
	kb := &fakeKeyboard{}
	w := simulatedWalker(kb, speed.Constant(1))

	for _, gs := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -1} {
		res, err := w.HoldMultiForDuration([]string{"w", "d"}, gs)
		require.NoError(t, err)
		assert.Equal(t, movement.Skipped, res.Reason, "%v", gs)
	}
	assert.Empty(t, kb.Events())
}

func TestWalkTilesConvertsToGameSeconds(t *testing.T) {
	kb := &fakeKeyboard{}
	w := simulatedWalker(kb, speed.Constant(1))

	res, err := w.WalkTiles("a", 8.3)
	require.NoError(t, err)
	assert.InDelta(t, movement.BaseSpeed, res.Target, 1e-9)
}

func TestMetricsRecordHolds(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)

	kb := &fakeKeyboard{failDown: map[string]error{"x": errors.New("nope")}}
	w := simulatedWalker(kb, speed.Constant(1), WithMetrics(m), WithDefaultStrategy(movement.Trapezoidal))

	_, err = w.HoldForDuration("w", 0.1)
	require.NoError(t, err)
	_, err = w.HoldForDuration("x", 0.1)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.holds.WithLabelValues("trapezoidal", "reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inputErrors.WithLabelValues("key_down")))
}
