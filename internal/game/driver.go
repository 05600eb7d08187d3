package game

import (
	"errors"
	"log/slog"
)

var ErrUnsupportedPlatform = errors.New("key injection is only supported on windows")

// DryRunDriver logs key transitions instead of sending them, for testing paths and
// timings away from the game.
type DryRunDriver struct {
	logger *slog.Logger
}

func NewDryRunDriver(logger *slog.Logger) *DryRunDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunDriver{logger: logger}
}

func (d *DryRunDriver) KeyDown(key string) error {
	d.logger.Debug("Key down", slog.String("key", key))
	return nil
}

func (d *DryRunDriver) KeyUp(key string) error {
	d.logger.Debug("Key up", slog.String("key", key))
	return nil
}

// NewDriver returns the dry-run driver when requested, otherwise the platform driver.
func NewDriver(dryRun bool, logger *slog.Logger) (Driver, error) {
	if dryRun {
		return NewDryRunDriver(logger), nil
	}
	return newSystemDriver()
}
