package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/beemacro/beemacro/internal/bot"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/beemacro/beemacro/internal/speed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const statusInterval = time.Second

type Options struct {
	CommandsPerSecond float64
	CommandBurst      int
	// Gatherer backs /metrics, the default registry when nil.
	Gatherer prometheus.Gatherer
}

// HttpServer is the local control surface: run state commands, status, the speed feed
// and a live websocket stream.
type HttpServer struct {
	logger   *slog.Logger
	server   *http.Server
	manager  *bot.Manager
	speed    *speed.Latest
	limiter  *rate.Limiter
	gatherer prometheus.Gatherer
	wsServer *WebSocketServer
}

func New(logger *slog.Logger, manager *bot.Manager, feed *speed.Latest, opts Options) *HttpServer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CommandsPerSecond <= 0 {
		opts.CommandsPerSecond = 5
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = 10
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &HttpServer{
		logger:   logger,
		manager:  manager,
		speed:    feed,
		limiter:  rate.NewLimiter(rate.Limit(opts.CommandsPerSecond), opts.CommandBurst),
		gatherer: opts.Gatherer,
		wsServer: NewWebSocketServer(logger),
	}
}

func (s *HttpServer) WebSocket() *WebSocketServer { return s.wsServer }

func (s *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.status)
	mux.Handle("POST /start", s.command(s.manager.Start))
	mux.Handle("POST /stop", s.command(s.manager.Stop))
	mux.Handle("POST /pause", s.command(s.manager.Pause))
	mux.Handle("POST /resume", s.command(s.manager.Resume))
	mux.Handle("POST /rejoin", s.command(s.manager.Rejoin))
	mux.HandleFunc("POST /api/speed", s.postSpeed)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", s.wsServer.HandleWebSocket)
	return mux
}

// Listen serves until ctx is done, then shuts the server down gracefully.
func (s *HttpServer) Listen(ctx context.Context, addr string) error {
	go s.wsServer.Run(ctx)
	go s.broadcastStatus(ctx)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown", slog.Any("error", err))
		}
	}()

	s.logger.Info("Control server listening", slog.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *HttpServer) broadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.manager.Status()
			s.wsServer.Publish(wsMessage{Type: "status", Time: time.Now(), Status: &st})
		}
	}
}

type commandResponse struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (s *HttpServer) command(fn func() error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if err := fn(); err != nil {
			writeJSON(w, commandStatus(err), commandResponse{State: s.manager.Cell().Get().String(), Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{OK: true, State: s.manager.Cell().Get().String()})
	})
}

// commandStatus maps refused transitions to 409, they are not server failures.
func commandStatus(err error) int {
	for _, target := range []error{
		runstate.ErrAlreadyRunning,
		runstate.ErrAlreadyStopped,
		runstate.ErrAlreadyPaused,
		runstate.ErrNotRunning,
		runstate.ErrNotPaused,
	} {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

func (s *HttpServer) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

type speedRequest struct {
	Multiplier *float64 `json:"multiplier"`
	WalkSpeed  *float64 `json:"walkspeed"`
}

type speedResponse struct {
	Multiplier float64 `json:"multiplier"`
}

// postSpeed is the feed of the external speed detector. It accepts either a multiplier or
// an absolute walk speed.
func (s *HttpServer) postSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid speed payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case req.Multiplier != nil && req.WalkSpeed != nil:
		http.Error(w, "send either multiplier or walkspeed, not both", http.StatusBadRequest)
		return
	case req.Multiplier != nil:
		s.speed.Set(*req.Multiplier)
	case req.WalkSpeed != nil:
		if err := s.speed.SetWalkSpeed(*req.WalkSpeed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "missing multiplier or walkspeed", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, speedResponse{Multiplier: s.speed.SpeedMultiplier()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", slog.Any("error", err))
	}
}
