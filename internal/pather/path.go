package pather

import (
	"errors"
	"fmt"
	"time"

	"github.com/beemacro/beemacro/internal/game"
	"github.com/beemacro/beemacro/internal/movement"
)

var (
	ErrInvalidStep = errors.New("invalid path step")
	ErrUnknownPath = errors.New("unknown path")
	ErrCycle       = errors.New("path cycle")
	ErrTooDeep     = errors.New("path nesting too deep")
)

type StepKind string

const (
	StepWalk      StepKind = "walk"
	StepMultiWalk StepKind = "multiwalk"
	StepTiles     StepKind = "tiles"
	StepPress     StepKind = "press"
	StepSleep     StepKind = "sleep"
	StepRun       StepKind = "run"
)

type WalkStep struct {
	Key     string  `yaml:"key"`
	Seconds float64 `yaml:"seconds"`
}

type MultiWalkStep struct {
	Keys    []string `yaml:"keys"`
	Seconds float64  `yaml:"seconds"`
}

type TilesStep struct {
	Key   string  `yaml:"key"`
	Tiles float64 `yaml:"tiles"`
}

type PressStep struct {
	Key string `yaml:"key"`
	// Hold defaults to a plain press when empty.
	Hold time.Duration `yaml:"hold,omitempty"`
}

// Step is one line of a path file. Exactly one field is set.
type Step struct {
	Walk      *WalkStep      `yaml:"walk,omitempty"`
	MultiWalk *MultiWalkStep `yaml:"multiwalk,omitempty"`
	Tiles     *TilesStep     `yaml:"tiles,omitempty"`
	Press     *PressStep     `yaml:"press,omitempty"`
	Sleep     time.Duration  `yaml:"sleep,omitempty"`
	Run       string         `yaml:"run,omitempty"`
}

func (s Step) Kind() StepKind {
	switch {
	case s.Walk != nil:
		return StepWalk
	case s.MultiWalk != nil:
		return StepMultiWalk
	case s.Tiles != nil:
		return StepTiles
	case s.Press != nil:
		return StepPress
	case s.Sleep != 0:
		return StepSleep
	case s.Run != "":
		return StepRun
	}
	return ""
}

func (s Step) set() int {
	n := 0
	for _, b := range []bool{s.Walk != nil, s.MultiWalk != nil, s.Tiles != nil, s.Press != nil, s.Sleep != 0, s.Run != ""} {
		if b {
			n++
		}
	}
	return n
}

func (s Step) Validate() error {
	if n := s.set(); n != 1 {
		return fmt.Errorf("%w: expected exactly one action, got %d", ErrInvalidStep, n)
	}

	switch s.Kind() {
	case StepWalk:
		if s.Walk.Seconds <= 0 {
			return fmt.Errorf("%w: walk needs positive seconds", ErrInvalidStep)
		}
		return validKeys(s.Walk.Key)
	case StepMultiWalk:
		if s.MultiWalk.Seconds <= 0 {
			return fmt.Errorf("%w: multiwalk needs positive seconds", ErrInvalidStep)
		}
		if len(s.MultiWalk.Keys) == 0 {
			return fmt.Errorf("%w: multiwalk without keys", ErrInvalidStep)
		}
		return validKeys(s.MultiWalk.Keys...)
	case StepTiles:
		if s.Tiles.Tiles <= 0 {
			return fmt.Errorf("%w: tiles needs a positive count", ErrInvalidStep)
		}
		return validKeys(s.Tiles.Key)
	case StepPress:
		if s.Press.Hold < 0 {
			return fmt.Errorf("%w: negative press hold", ErrInvalidStep)
		}
		return validKeys(s.Press.Key)
	case StepSleep:
		if s.Sleep < 0 {
			return fmt.Errorf("%w: negative sleep", ErrInvalidStep)
		}
	}
	return nil
}

func validKeys(keys ...string) error {
	for _, k := range keys {
		if _, err := game.NormalizeKey(k); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStep, err)
		}
	}
	return nil
}

// Path is a named, ordered list of movement steps loaded from a YAML file.
type Path struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Strategy    *movement.Strategy `yaml:"strategy,omitempty"`
	Compensate  *bool              `yaml:"compensate,omitempty"`
	Steps       []Step             `yaml:"steps"`

	file string
}

func (p *Path) File() string { return p.file }

func (p *Path) Validate() error {
	if p.Name == "" {
		return errors.New("path without a name")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("path %s has no steps", p.Name)
	}
	for i, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("path %s step %d: %w", p.Name, i+1, err)
		}
	}
	return nil
}

func (p *Path) references() []string {
	var refs []string
	for _, s := range p.Steps {
		if s.Run != "" {
			refs = append(refs, s.Run)
		}
	}
	return refs
}
