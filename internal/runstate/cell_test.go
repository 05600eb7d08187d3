package runstate

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCellStartsStopped(t *testing.T) {
	c := NewCell()
	assert.Equal(t, Stopped, c.Get())
}

func TestLastWriteWins(t *testing.T) {
	c := NewCell()
	c.Set(StartRequested)
	c.Set(PauseRequested)
	c.Set(StopRequested)
	assert.Equal(t, StopRequested, c.Get())
}

func TestConcurrentWritesNeverTear(t *testing.T) {
	c := NewCell()
	states := []State{StopRequested, StartRequested, Running, Stopped, Disconnected, PauseRequested, Paused}

	var wg sync.WaitGroup
	for _, s := range states {
		wg.Add(1)
		go func(s State) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Set(s)
				if !c.Get().Valid() {
					t.Errorf("torn read: %d", c.Get())
					return
				}
			}
		}(s)
	}
	wg.Wait()
	assert.True(t, c.Get().Valid())
}

func TestAcknowledge(t *testing.T) {
	tests := []struct {
		from    State
		want    State
		changed bool
	}{
		{StartRequested, Running, true},
		{PauseRequested, Paused, true},
		{StopRequested, Stopped, true},
		{Running, Running, false},
		{Paused, Paused, false},
		{Disconnected, Disconnected, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			c := NewCell()
			c.Set(tt.from)
			got, changed := c.Acknowledge()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, c.Get())
		})
	}
}

func TestCompareAndSwapLosesToNewerWrite(t *testing.T) {
	c := NewCell()
	c.Set(PauseRequested)
	c.Set(StopRequested)
	assert.False(t, c.CompareAndSwap(PauseRequested, Paused))
	assert.Equal(t, StopRequested, c.Get())
}

func TestControllerGuards(t *testing.T) {
	c := NewCell()

	assert.ErrorIs(t, c.RequestStop(), ErrAlreadyStopped)
	assert.ErrorIs(t, c.RequestPause(), ErrNotRunning)
	assert.ErrorIs(t, c.RequestResume(), ErrNotPaused)

	require.NoError(t, c.RequestStart())
	assert.Equal(t, StartRequested, c.Get())

	c.Set(Running)
	assert.ErrorIs(t, c.RequestStart(), ErrAlreadyRunning)
	assert.ErrorIs(t, c.RequestResume(), ErrAlreadyRunning)

	require.NoError(t, c.RequestPause())
	assert.Equal(t, PauseRequested, c.Get())
	assert.ErrorIs(t, c.RequestPause(), ErrAlreadyPaused)

	c.Set(Paused)
	require.NoError(t, c.RequestResume())
	assert.Equal(t, Running, c.Get())

	c.RequestRejoin()
	assert.Equal(t, Disconnected, c.Get())

	require.NoError(t, c.RequestStop())
	assert.Equal(t, StopRequested, c.Get())
}

func TestParseState(t *testing.T) {
	s, err := ParseState("Pause_Requested")
	require.NoError(t, err)
	assert.Equal(t, PauseRequested, s)

	s, err = ParseState("4")
	require.NoError(t, err)
	assert.Equal(t, Disconnected, s)

	_, err = ParseState("sleeping")
	assert.Error(t, err)

	assert.Equal(t, "unknown(42)", State(42).String())
}

func TestCommandSequencesKeepEdges(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests and acknowledgements only take documented edges", prop.ForAll(
		func(ops []int) bool {
			c := NewCell()
			for _, op := range ops {
				before := c.Get()
				switch op {
				case 0:
					if err := c.RequestStart(); (err == nil) == (before == Running) {
						return false
					}
				case 1:
					if err := c.RequestStop(); (err == nil) == (before == Stopped) {
						return false
					}
				case 2:
					if err := c.RequestPause(); (err == nil) != (before == Running) {
						return false
					}
				case 3:
					if err := c.RequestResume(); (err == nil) != (before == Paused) {
						return false
					}
					if before == Paused && c.Get() != Running {
						return false
					}
				case 4:
					c.RequestRejoin()
				case 5:
					after, ok := c.Acknowledge()
					switch after {
					case StartRequested, PauseRequested, StopRequested:
						return false
					}
					if ok == (before == after) {
						return false
					}
				}
				if s := c.Get(); s < StopRequested || s > Paused {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
