package discord

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/beemacro/beemacro/internal/bot"
	"github.com/beemacro/beemacro/internal/event"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []webhookPayload
	status   int
}

func (r *webhookRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p webhookPayload
	_ = json.NewDecoder(req.Body).Decode(&p)
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	status := r.status
	r.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (r *webhookRecorder) received() []webhookPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webhookPayload(nil), r.payloads...)
}

func webhookBot(t *testing.T, opts Options, d Dispatcher) (*Bot, *webhookRecorder) {
	t.Helper()
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec)
	t.Cleanup(ts.Close)

	opts.UseWebhook = true
	opts.WebhookURL = ts.URL
	b, err := NewBot(opts, d, quiet)
	require.NoError(t, err)
	return b, rec
}

func TestCommandsRequireAdminAndPrefix(t *testing.T) {
	cell := runstate.NewCell()
	m := bot.NewManager(cell, nil, nil, "", quiet)
	b, _ := webhookBot(t, Options{BotAdmins: []string{"42"}, CommandBurst: 10}, m)

	_, ok := b.handleCommand("7", "!start")
	assert.False(t, ok)
	_, ok = b.handleCommand("42", "start")
	assert.False(t, ok)
	assert.Equal(t, runstate.Stopped, cell.Get())

	reply, ok := b.handleCommand("42", "!start")
	require.True(t, ok)
	assert.Contains(t, reply, "start_requested")

	reply, _ = b.handleCommand("42", "!resume")
	assert.Contains(t, reply, "Refused")

	reply, _ = b.handleCommand("42", "!fly")
	assert.Contains(t, reply, "Unknown command: `!fly`")

	reply, _ = b.handleCommand("42", "!status")
	assert.Contains(t, reply, "```")
}

func TestCommandsAreThrottled(t *testing.T) {
	m := bot.NewManager(runstate.NewCell(), nil, nil, "", quiet)
	b, _ := webhookBot(t, Options{BotAdmins: []string{"42"}, CommandsPerSecond: 0.001, CommandBurst: 1}, m)

	reply, _ := b.handleCommand("42", "!help")
	assert.Contains(t, reply, "Commands")
	reply, _ = b.handleCommand("42", "!help")
	assert.Equal(t, "Slow down, too many commands.", reply)
}

func TestEventsGoToWebhook(t *testing.T) {
	b, rec := webhookBot(t, Options{}, nil)
	ctx := context.Background()

	require.NoError(t, b.Handle(ctx, event.StateChanged("beemacro", runstate.StartRequested, runstate.Running)))
	require.NoError(t, b.Handle(ctx, event.StateChanged("controller", runstate.Stopped, runstate.StartRequested)))
	require.NoError(t, b.Handle(ctx, event.TaskStarted(event.Text("beemacro", "go"), "collect/honeystorm")))
	require.NoError(t, b.Handle(ctx, event.TaskFinished(event.Text("beemacro", "done"), "collect/honeystorm", event.FinishedOK, time.Second)))
	require.NoError(t, b.Handle(ctx, event.TaskFinished(event.Text("beemacro", "boom"), "collect/stockings", event.FinishedError, 1500*time.Millisecond)))
	require.NoError(t, b.Handle(ctx, event.NgrokTunnel("https://bees.ngrok.app")))

	got := rec.received()
	require.Len(t, got, 3)
	require.Len(t, got[0].Embeds, 1)
	assert.Contains(t, got[0].Embeds[0].Description, "start_requested -> running")
	assert.Equal(t, colorGreen, got[0].Embeds[0].Color)

	require.Len(t, got[1].Embeds, 1)
	assert.Contains(t, got[1].Embeds[0].Description, "collect/stockings")
	assert.Equal(t, colorRed, got[1].Embeds[0].Color)
	assert.Equal(t, "1.5s", got[1].Embeds[0].Fields[0].Value)

	assert.Contains(t, got[2].Content, "https://bees.ngrok.app")
}

func TestTaskMessagesWhenEnabled(t *testing.T) {
	b, rec := webhookBot(t, Options{EnableTaskMessages: true}, nil)
	require.NoError(t, b.Handle(context.Background(), event.TaskStarted(event.Text("beemacro", "go"), "collect/honeystorm")))

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, "**[beemacro]** started **collect/honeystorm**", got[0].Content)
}

func TestWebhookErrorsSurface(t *testing.T) {
	b, rec := webhookBot(t, Options{}, nil)
	rec.status = http.StatusTooManyRequests

	err := b.Handle(context.Background(), event.Text("beemacro", "hello"))
	assert.ErrorContains(t, err, "webhook returned 429")
}

func TestWebhookModeNeedsURL(t *testing.T) {
	_, err := NewBot(Options{UseWebhook: true}, nil, quiet)
	assert.Error(t, err)
}
