package game

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Keyboard is the input surface the hold sequencer drives.
type Keyboard interface {
	KeyDown(key string) error
	KeyUp(key string) error
}

// Driver injects a single key transition into the OS. Keys arrive normalized.
type Driver interface {
	KeyDown(key string) error
	KeyUp(key string) error
}

// HID wraps a Driver, keeps track of which keys are held and can release all of them,
// which is what the supervisor does whenever execution stops or disconnects.
type HID struct {
	driver Driver
	logger *slog.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

func NewHID(driver Driver, logger *slog.Logger) *HID {
	if logger == nil {
		logger = slog.Default()
	}
	return &HID{
		driver: driver,
		logger: logger,
		held:   make(map[string]struct{}),
	}
}

func (hid *HID) KeyDown(key string) error {
	k, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := hid.driver.KeyDown(k); err != nil {
		return fmt.Errorf("key down %s: %w", k, err)
	}

	hid.mu.Lock()
	hid.held[k] = struct{}{}
	hid.mu.Unlock()
	return nil
}

func (hid *HID) KeyUp(key string) error {
	k, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := hid.driver.KeyUp(k); err != nil {
		return fmt.Errorf("key up %s: %w", k, err)
	}

	hid.mu.Lock()
	delete(hid.held, k)
	hid.mu.Unlock()
	return nil
}

// Held returns the currently asserted keys in sorted order.
func (hid *HID) Held() []string {
	hid.mu.Lock()
	defer hid.mu.Unlock()

	keys := make([]string, 0, len(hid.held))
	for k := range hid.held {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ReleaseAll sends a key up for every held key plus the movement keys, which may have
// been left down by a previous process.
func (hid *HID) ReleaseAll() error {
	keys := hid.Held()
	for _, k := range MovementKeys {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}

	var errs []error
	for _, k := range keys {
		if err := hid.KeyUp(k); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		hid.logger.Warn("Some keys could not be released", slog.Any("error", errors.Join(errs...)))
	}
	return errors.Join(errs...)
}
