package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/beemacro/beemacro/internal/event"
	"github.com/beemacro/beemacro/internal/runstate"
)

var ErrUnknownCommand = errors.New("unknown command")

// SpeedReader is the read side of the speed feed, used for status reports.
type SpeedReader interface {
	Reading() (k float64, age time.Duration, fresh bool)
}

// Manager is the controller side of the run state: every surface (HTTP, chat, CLI) goes
// through it so commands are logged and broadcast the same way.
type Manager struct {
	cell       *runstate.Cell
	supervisor *Supervisor
	speed      SpeedReader
	profile    string
	logger     *slog.Logger
}

func NewManager(cell *runstate.Cell, supervisor *Supervisor, speed SpeedReader, profile string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cell: cell, supervisor: supervisor, speed: speed, profile: profile, logger: logger}
}

func (m *Manager) Cell() *runstate.Cell { return m.cell }

func (m *Manager) Start() error {
	return m.request("start", m.cell.RequestStart)
}

func (m *Manager) Stop() error {
	return m.request("stop", m.cell.RequestStop)
}

func (m *Manager) Pause() error {
	return m.request("pause", m.cell.RequestPause)
}

func (m *Manager) Resume() error {
	return m.request("resume", m.cell.RequestResume)
}

func (m *Manager) Rejoin() error {
	return m.request("rejoin", func() error {
		m.cell.RequestRejoin()
		return nil
	})
}

func (m *Manager) request(name string, fn func() error) error {
	from := m.cell.Get()
	if err := fn(); err != nil {
		m.logger.Debug("Command refused", slog.String("command", name), slog.String("state", from.String()), slog.Any("error", err))
		return err
	}
	to := m.cell.Get()
	m.logger.Info("Command accepted", slog.String("command", name), slog.String("from", from.String()), slog.String("to", to.String()))
	event.Send(event.StateChanged("controller", from, to))
	return nil
}

// Status is the snapshot served to every controller.
type Status struct {
	State       string    `json:"state"`
	Code        int32     `json:"code"`
	Profile     string    `json:"profile,omitempty"`
	Task        string    `json:"task,omitempty"`
	Cycles      int       `json:"cycles"`
	Reconnects  int       `json:"reconnects"`
	LastError   string    `json:"lastError,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	SpeedFactor float64   `json:"speedMultiplier"`
	SpeedFresh  bool      `json:"speedFresh"`
	SpeedAge    string    `json:"speedAge,omitempty"`
}

func (m *Manager) Status() Status {
	st := m.cell.Get()
	s := Status{State: st.String(), Code: int32(st), Profile: m.profile, SpeedFactor: 1}
	if m.supervisor != nil {
		stats := m.supervisor.Stats()
		s.Task = stats.CurrentTask
		s.Cycles = stats.Cycles
		s.Reconnects = stats.Reconnects
		s.LastError = stats.LastError
		s.StartedAt = stats.StartedAt
	}
	if m.speed != nil {
		k, age, fresh := m.speed.Reading()
		s.SpeedFactor = k
		s.SpeedFresh = fresh
		if age > 0 {
			s.SpeedAge = age.Round(time.Millisecond).String()
		}
	}
	return s
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s", s.State)
	if s.Profile != "" {
		fmt.Fprintf(&b, "\nProfile: %s", s.Profile)
	}
	if s.Task != "" {
		fmt.Fprintf(&b, "\nTask: %s", s.Task)
	}
	fmt.Fprintf(&b, "\nCycles: %d, reconnects: %d", s.Cycles, s.Reconnects)
	freshness := "stale"
	if s.SpeedFresh {
		freshness = "fresh"
	}
	fmt.Fprintf(&b, "\nSpeed: x%.2f (%s)", s.SpeedFactor, freshness)
	if s.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", s.LastError)
	}
	return b.String()
}

const helpText = "Commands: start, stop, pause, resume, rejoin, status, help"

// Dispatch runs a text command from a chat surface or the CLI and returns the reply.
// A leading "!" or "/" is accepted, as is a trailing "@botname" suffix.
func (m *Manager) Dispatch(text string) (string, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return helpText, nil
	}
	cmd := strings.TrimLeft(fields[0], "!/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	var err error
	switch cmd {
	case "start":
		err = m.Start()
	case "stop":
		err = m.Stop()
	case "pause":
		err = m.Pause()
	case "resume":
		err = m.Resume()
	case "rejoin":
		err = m.Rejoin()
	case "status":
		return m.Status().String(), nil
	case "help":
		return helpText, nil
	default:
		return helpText, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	if err != nil {
		return err.Error(), err
	}
	return fmt.Sprintf("%s: ok (%s)", cmd, m.cell.Get()), nil
}
