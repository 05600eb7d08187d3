package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beemacro/beemacro/internal/bot"
	"github.com/beemacro/beemacro/internal/runstate"
)

// Client talks to a running agent's control server, used by "beemacro ctl".
type Client struct {
	base string
	http *http.Client
}

func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: 5 * time.Second}}
}

var commands = map[string]bool{"start": true, "stop": true, "pause": true, "resume": true, "rejoin": true}

// Command posts a run state command and returns the state the agent reports afterwards.
func (c *Client) Command(ctx context.Context, name string) (runstate.State, error) {
	if !commands[name] {
		return 0, fmt.Errorf("%w: %s", bot.ErrUnknownCommand, name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+name, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, fmt.Errorf("%s: rate limited", name)
	}
	var out commandResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding %s response: %w", name, err)
	}
	state, err := runstate.ParseState(out.State)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if !out.OK {
		return state, fmt.Errorf("%s refused: %s", name, out.Error)
	}
	return state, nil
}

func (c *Client) Status(ctx context.Context) (bot.Status, error) {
	var st bot.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return st, fmt.Errorf("fetching status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return st, fmt.Errorf("status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err = json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	if !runstate.State(st.Code).Valid() {
		return st, fmt.Errorf("status: unknown run state code %d", st.Code)
	}
	return st, nil
}
