package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietListener() *Listener {
	return NewListener(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListenerDeliversToEveryHandler(t *testing.T) {
	l := quietListener()

	var mu sync.Mutex
	var got []string
	record := func(tag string) Handler {
		return func(_ context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+e.Message())
			return nil
		}
	}
	l.Register(record("a"))
	l.Register(func(context.Context, Event) error { return errors.New("ignored") })
	l.Register(record("b"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx) }()

	Send(StateChanged("macro", runstate.Stopped, runstate.Running))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a:stopped -> running", "b:stopped -> running"}, got)

	cancel()
	assert.NoError(t, <-done)
}

func TestSendDropsWhenQueueIsFull(t *testing.T) {
	l := quietListener()
	for i := 0; i < queueSize+5; i++ {
		l.Send(Text("macro", "tick"))
	}
	assert.Len(t, l.events, queueSize)
}

func TestEventsCarryUniqueIDs(t *testing.T) {
	a := TaskStarted(Text("macro", "start"), "honeystorm")
	b := TaskFinished(Text("macro", "done"), "honeystorm", FinishedOK, time.Second)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "macro", b.Source())
	assert.Equal(t, FinishedOK, b.Reason)

	n := NgrokTunnel("https://example.ngrok.app")
	assert.Contains(t, n.Message(), "https://example.ngrok.app")
}
