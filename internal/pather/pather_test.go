package pather

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beemacro/beemacro/internal/action"
	"github.com/beemacro/beemacro/internal/movement"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/beemacro/beemacro/internal/speed"
	"github.com/beemacro/beemacro/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePath(t *testing.T, dir, name, body string) {
	t.Helper()
	file := filepath.Join(dir, filepath.FromSlash(name)+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte(body), 0o644))
}

type recordingMover struct {
	calls     []string
	interrupt string
	fail      error
}

func (m *recordingMover) result(call string) (movement.Result, error) {
	m.calls = append(m.calls, call)
	if m.fail != nil {
		return movement.Result{}, m.fail
	}
	if call == m.interrupt {
		return movement.Result{Reason: movement.Interrupted}, nil
	}
	return movement.Result{Reason: movement.Reached}, nil
}

func (m *recordingMover) HoldForDuration(key string, gs float64, _ ...action.HoldOption) (movement.Result, error) {
	return m.result("walk " + key)
}

func (m *recordingMover) HoldMultiForDuration(keys []string, gs float64, _ ...action.HoldOption) (movement.Result, error) {
	return m.result("multiwalk " + strings.Join(keys, "+"))
}

func (m *recordingMover) WalkTiles(key string, tiles float64, _ ...action.HoldOption) (movement.Result, error) {
	return m.result("tiles " + key)
}

func (m *recordingMover) PressFor(key string, d time.Duration) (utils.Outcome, error) {
	m.calls = append(m.calls, "press "+key+" "+d.String())
	return utils.Completed, nil
}

func testWaiter() *utils.Waiter {
	cell := runstate.NewCell()
	cell.Set(runstate.Running)
	return utils.NewWaiter(cell, utils.WithClock(utils.NewStepClock(time.Unix(0, 0), 0)))
}

func TestLoadDirNamesPathsByRelativeFile(t *testing.T) {
	dir := t.TempDir()
	writePath(t, dir, "collect/honeystorm", `
description: honeystorm from the hive slot
strategy: trapezoidal
steps:
  - walk: {key: w, seconds: 1.5}
  - multiwalk: {keys: [w, d], seconds: 2}
  - tiles: {key: a, tiles: 4}
  - press: {key: e}
  - sleep: 500ms
  - run: common/reset
`)
	writePath(t, dir, "common/reset", `
steps:
  - press: {key: esc, hold: 50ms}
`)

	lib, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"collect/honeystorm", "common/reset"}, lib.Names())

	p, ok := lib.Get("collect/honeystorm")
	require.True(t, ok)
	require.NotNil(t, p.Strategy)
	assert.Equal(t, movement.Trapezoidal, *p.Strategy)
	assert.Equal(t, 500*time.Millisecond, p.Steps[4].Sleep)
	assert.Equal(t, StepRun, p.Steps[5].Kind())
}

func TestShippedPathsLoad(t *testing.T) {
	lib, err := LoadDir(filepath.Join("..", "..", "paths"))
	require.NoError(t, err)
	for _, name := range []string{"collect/honeystorm", "collect/stockings", "common/reset", "common/rejoin"} {
		_, ok := lib.Get(name)
		assert.True(t, ok, name)
	}
}

func TestLoadDirRejectsBadSteps(t *testing.T) {
	tests := map[string]string{
		"two actions":   "steps:\n  - {walk: {key: w, seconds: 1}, sleep: 1s}\n",
		"unknown key":   "steps:\n  - walk: {key: hyper, seconds: 1}\n",
		"zero seconds":  "steps:\n  - walk: {key: w, seconds: 0}\n",
		"unknown field": "steps:\n  - walk: {key: w, seconds: 1, speed: 2}\n",
		"no steps":      "description: empty\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writePath(t, dir, "bad", body)
			_, err := LoadDir(dir)
			assert.Error(t, err)
		})
	}
}

func TestLibraryDetectsCyclesAndMissingPaths(t *testing.T) {
	dir := t.TempDir()
	writePath(t, dir, "a", "steps:\n  - run: b\n")
	writePath(t, dir, "b", "steps:\n  - run: a\n")
	_, err := LoadDir(dir)
	assert.ErrorIs(t, err, ErrCycle)

	dir = t.TempDir()
	writePath(t, dir, "a", "steps:\n  - run: nowhere\n")
	_, err = LoadDir(dir)
	assert.ErrorIs(t, err, ErrUnknownPath)
}

func TestRunnerExecutesStepsInOrder(t *testing.T) {
	dir := t.TempDir()
	writePath(t, dir, "main", `
steps:
  - walk: {key: w, seconds: 1}
  - run: sub
  - tiles: {key: d, tiles: 2}
`)
	writePath(t, dir, "sub", `
steps:
  - multiwalk: {keys: [s, a], seconds: 0.5}
  - press: {key: e}
`)
	lib, err := LoadDir(dir)
	require.NoError(t, err)

	mover := &recordingMover{}
	checkpoints := 0
	r := NewRunner(lib, mover, testWaiter(), func() error { checkpoints++; return nil }, nil)

	require.NoError(t, r.Run(context.Background(), "main"))
	assert.Equal(t, []string{"walk w", "multiwalk s+a", "press e 20ms", "tiles d"}, mover.calls)
	assert.Equal(t, 5, checkpoints)
}

type keyLog struct{ events []string }

func (k *keyLog) KeyDown(key string) error { k.events = append(k.events, "down:"+key); return nil }

func (k *keyLog) KeyUp(key string) error { k.events = append(k.events, "up:"+key); return nil }

func TestPausedWalkResumesForRemainingDistance(t *testing.T) {
	for _, step := range []Step{
		{Walk: &WalkStep{Key: "w", Seconds: 1}},
		{Tiles: &TilesStep{Key: "w", Tiles: 8.3}},
	} {
		t.Run(string(step.Kind()), func(t *testing.T) {
			lib, err := NewLibrary(&Path{Name: "p", Steps: []Step{step}})
			require.NoError(t, err)

			cell := runstate.NewCell()
			cell.Set(runstate.Running)
			w := utils.NewWaiter(cell, utils.WithClock(utils.NewStepClock(time.Unix(0, 0), time.Millisecond)))

			samples := 0
			sampler := speed.SamplerFunc(func() float64 {
				samples++
				if samples == 300 {
					require.NoError(t, cell.RequestPause())
				}
				return 1
			})
			travelled := 0.0
			engine := movement.NewEngine(sampler, w, movement.WithStepObserver(func(s movement.Step) {
				travelled += s.Increment
			}))
			kb := &keyLog{}
			walker := action.NewWalker(kb, engine, w)

			pauses := 0
			checkpoint := func() error {
				if cell.Get() == runstate.PauseRequested {
					pauses++
					_, _ = cell.Acknowledge()
					require.NoError(t, cell.RequestResume())
				}
				return nil
			}

			require.NoError(t, NewRunner(lib, walker, w, checkpoint, nil).Run(context.Background(), "p"))
			assert.Equal(t, 1, pauses)
			assert.InDelta(t, movement.BaseSpeed, travelled, 0.1)
			assert.Equal(t, []string{"down:w", "up:w", "down:w", "up:w"}, kb.events)
		})
	}
}

func TestUnacknowledgedPauseDoesNotSpin(t *testing.T) {
	lib, err := NewLibrary(&Path{Name: "p", Steps: []Step{{Walk: &WalkStep{Key: "w", Seconds: 1}}}})
	require.NoError(t, err)

	cell := runstate.NewCell()
	cell.Set(runstate.PauseRequested)
	w := utils.NewWaiter(cell, utils.WithClock(utils.NewStepClock(time.Unix(0, 0), time.Millisecond)))
	walker := action.NewWalker(&keyLog{}, movement.NewEngine(speed.Constant(1), w), w)

	require.NoError(t, NewRunner(lib, walker, w, nil, nil).Run(context.Background(), "p"))
}

func TestRunnerStopsOnInterruptedStep(t *testing.T) {
	lib, err := NewLibrary(&Path{Name: "p", Steps: []Step{
		{Walk: &WalkStep{Key: "w", Seconds: 1}},
		{Walk: &WalkStep{Key: "s", Seconds: 1}},
	}})
	require.NoError(t, err)

	mover := &recordingMover{interrupt: "walk w"}
	err = NewRunner(lib, mover, testWaiter(), nil, nil).Run(context.Background(), "p")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, []string{"walk w"}, mover.calls)
}

func TestRunnerAbortsOnCheckpointError(t *testing.T) {
	halted := errors.New("halted")
	lib, err := NewLibrary(&Path{Name: "p", Steps: []Step{
		{Press: &PressStep{Key: "e"}},
		{Press: &PressStep{Key: "r"}},
	}})
	require.NoError(t, err)

	mover := &recordingMover{}
	err = NewRunner(lib, mover, testWaiter(), func() error { return halted }, nil).Run(context.Background(), "p")
	assert.ErrorIs(t, err, halted)
	assert.Len(t, mover.calls, 1)
}

func TestRunnerSurfacesMoverErrors(t *testing.T) {
	boom := errors.New("driver gone")
	lib, err := NewLibrary(&Path{Name: "p", Steps: []Step{{Tiles: &TilesStep{Key: "a", Tiles: 3}}}})
	require.NoError(t, err)

	err = NewRunner(lib, &recordingMover{fail: boom}, testWaiter(), nil, nil).Run(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 1 (tiles)")
}

func TestRunnerHonoursContextAndUnknownPaths(t *testing.T) {
	lib, err := NewLibrary(&Path{Name: "p", Steps: []Step{{Sleep: time.Second}}})
	require.NoError(t, err)
	r := NewRunner(lib, &recordingMover{}, testWaiter(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, "p"), context.Canceled)
	assert.ErrorIs(t, r.Run(context.Background(), "missing"), ErrUnknownPath)
}

func TestLibraryRejectsDeepNesting(t *testing.T) {
	var paths []*Path
	for i := 0; i <= MaxDepth+1; i++ {
		p := &Path{Name: pathName(i)}
		if i <= MaxDepth {
			p.Steps = []Step{{Run: pathName(i + 1)}}
		} else {
			p.Steps = []Step{{Sleep: time.Millisecond}}
		}
		paths = append(paths, p)
	}

	_, err := NewLibrary(paths...)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func pathName(i int) string { return "p" + string(rune('a'+i)) }
