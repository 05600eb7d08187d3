package movement

import (
	"fmt"
	"strings"
)

// Strategy selects how the engine integrates the speed signal.
type Strategy int

const (
	// Predictive adds B*k*dt with the sample taken at the end of each interval.
	Predictive Strategy = iota
	// Trapezoidal averages the previous and the current sample over each interval.
	Trapezoidal
)

func (s Strategy) String() string {
	switch s {
	case Predictive:
		return "predictive"
	case Trapezoidal:
		return "trapezoidal"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

func ParseStrategy(v string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "predictive":
		return Predictive, nil
	case "trapezoidal", "trapezoid":
		return Trapezoidal, nil
	}
	return Predictive, fmt.Errorf("unknown movement strategy %q", v)
}

// UnmarshalText lets profile files name the strategy directly.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason tells why a timed hold ended.
type Reason int

const (
	Reached Reason = iota
	Cutoff
	Interrupted
	PauseRequested
	// Skipped is reported for non-positive durations, nothing was held.
	Skipped
)

func (r Reason) String() string {
	switch r {
	case Reached:
		return "reached"
	case Cutoff:
		return "cutoff"
	case Interrupted:
		return "interrupted"
	case PauseRequested:
		return "pause_requested"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}
