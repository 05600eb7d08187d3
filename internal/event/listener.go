package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	queueSize      = 100
	handlerTimeout = 10 * time.Second
)

type Handler func(ctx context.Context, e Event) error

// Listener fans events out to every registered handler, one event at a time.
type Listener struct {
	logger *slog.Logger
	events chan Event

	mu       sync.RWMutex
	handlers []Handler
}

var defaultListener atomic.Pointer[Listener]

// NewListener creates a listener and makes it the target of the package-level Send.
func NewListener(logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		logger: logger,
		events: make(chan Event, queueSize),
	}
	defaultListener.Store(l)
	return l
}

func (l *Listener) Register(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Send queues an event without blocking, a full queue drops it.
func (l *Listener) Send(e Event) {
	select {
	case l.events <- e:
	default:
		l.logger.Warn("Event queue full, dropping event", slog.String("message", e.Message()))
	}
}

// Listen delivers queued events until ctx is done.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-l.events:
			l.dispatch(ctx, e)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, e Event) {
	l.mu.RLock()
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.RUnlock()

	for _, h := range handlers {
		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		if err := h(hctx, e); err != nil {
			l.logger.Error("Error handling event", slog.String("id", e.ID()), slog.Any("error", err))
		}
		cancel()
	}
}

// Send queues e on the most recently created listener. Without one the event is dropped.
func Send(e Event) {
	if l := defaultListener.Load(); l != nil {
		l.Send(e)
	}
}
