package runstate

import (
	"fmt"
	"strings"
)

// State is the lifecycle value shared between the controller surfaces and the executor.
// The integer codes are stable: remote tooling and the legacy settings UI read them directly.
type State int32

const (
	StopRequested  State = 0
	StartRequested State = 1
	Running        State = 2
	Stopped        State = 3
	Disconnected   State = 4
	PauseRequested State = 5
	Paused         State = 6
)

var stateNames = map[State]string{
	StopRequested:  "stop_requested",
	StartRequested: "start_requested",
	Running:        "running",
	Stopped:        "stopped",
	Disconnected:   "disconnected",
	PauseRequested: "pause_requested",
	Paused:         "paused",
}

func (s State) String() string {
	if name, found := stateNames[s]; found {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

func (s State) Valid() bool {
	_, found := stateNames[s]
	return found
}

// ParseState accepts either the snake_case name or the numeric code.
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s, name := range stateNames {
		if name == v || fmt.Sprint(int32(s)) == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown run state %q", v)
}
