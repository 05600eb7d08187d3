package ngrok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/beemacro/beemacro/internal/event"
	ngrok "golang.ngrok.com/ngrok"
	"golang.ngrok.com/ngrok/config"
)

type Options struct {
	// LocalAddr is the control server address, with or without scheme.
	LocalAddr     string
	Authtoken     string
	Region        string
	Domain        string
	BasicAuthUser string
	BasicAuthPass string
	// SendURL announces the public URL on the event listener once the tunnel is up.
	SendURL bool
}

type Tunnel struct {
	forwarder ngrok.Forwarder
}

// backendURL normalizes "127.0.0.1:8087" and ":8087" into a forwardable URL.
func backendURL(addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("ngrok local address is required")
	}
	if !strings.Contains(addr, "://") {
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid local address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid local address %q", addr)
	}
	return u, nil
}

// Start exposes the control server through an ngrok HTTP endpoint.
func Start(ctx context.Context, opts Options) (*Tunnel, error) {
	backend, err := backendURL(opts.LocalAddr)
	if err != nil {
		return nil, err
	}

	httpOpts := make([]config.HTTPEndpointOption, 0, 2)
	if opts.Domain != "" {
		httpOpts = append(httpOpts, config.WithDomain(opts.Domain))
	}
	if opts.BasicAuthUser != "" && opts.BasicAuthPass != "" {
		httpOpts = append(httpOpts, config.WithBasicAuth(opts.BasicAuthUser, opts.BasicAuthPass))
	}

	connectOpts := make([]ngrok.ConnectOption, 0, 2)
	if opts.Authtoken != "" {
		connectOpts = append(connectOpts, ngrok.WithAuthtoken(opts.Authtoken))
	} else if os.Getenv("NGROK_AUTHTOKEN") != "" {
		connectOpts = append(connectOpts, ngrok.WithAuthtokenFromEnv())
	}
	if opts.Region != "" {
		connectOpts = append(connectOpts, ngrok.WithRegion(opts.Region))
	}

	fwd, err := ngrok.ListenAndForward(ctx, backend, config.HTTPEndpoint(httpOpts...), connectOpts...)
	if err != nil {
		return nil, err
	}

	return &Tunnel{forwarder: fwd}, nil
}

// Run keeps a tunnel open until ctx is done.
func Run(ctx context.Context, opts Options, logger *slog.Logger) error {
	t, err := Start(ctx, opts)
	if err != nil {
		return fmt.Errorf("starting ngrok tunnel: %w", err)
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Warn("Closing ngrok tunnel", slog.Any("error", err))
		}
	}()

	logger.Info("Ngrok tunnel started", slog.String("url", t.URL()))
	if opts.SendURL {
		event.Send(event.NgrokTunnel(t.URL()))
	}

	<-ctx.Done()
	return nil
}

func (t *Tunnel) URL() string {
	if t == nil || t.forwarder == nil {
		return ""
	}
	return t.forwarder.URL()
}

func (t *Tunnel) Close() error {
	if t == nil || t.forwarder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.forwarder.CloseWithContext(ctx)
}
