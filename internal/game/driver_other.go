//go:build !windows

package game

func newSystemDriver() (Driver, error) {
	return nil, ErrUnsupportedPlatform
}
