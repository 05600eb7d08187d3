package runstate

import "errors"

var (
	ErrAlreadyRunning = errors.New("macro is already running")
	ErrAlreadyStopped = errors.New("macro is already stopped")
	ErrAlreadyPaused  = errors.New("macro is already paused")
	ErrNotRunning     = errors.New("macro is not running")
	ErrNotPaused      = errors.New("macro is not paused")
)

// RequestStart asks the executor to begin. Refused while already running.
func (c *Cell) RequestStart() error {
	if c.Get() == Running {
		return ErrAlreadyRunning
	}
	c.Set(StartRequested)
	return nil
}

// RequestStop asks the executor to halt. Refused once the executor reports Stopped.
func (c *Cell) RequestStop() error {
	if c.Get() == Stopped {
		return ErrAlreadyStopped
	}
	c.Set(StopRequested)
	return nil
}

// RequestPause only applies to a running executor.
func (c *Cell) RequestPause() error {
	switch c.Get() {
	case Running:
		c.Set(PauseRequested)
		return nil
	case Paused, PauseRequested:
		return ErrAlreadyPaused
	default:
		return ErrNotRunning
	}
}

// RequestResume moves a paused executor straight back to Running, the executor picks
// up from WaitWhilePaused without a further acknowledgement.
func (c *Cell) RequestResume() error {
	switch c.Get() {
	case Paused:
		c.Set(Running)
		return nil
	case Running:
		return ErrAlreadyRunning
	default:
		return ErrNotPaused
	}
}

// RequestRejoin forces the executor to tear down and reconnect to the game.
func (c *Cell) RequestRejoin() {
	c.Set(Disconnected)
}
