package clock

import "errors"

var (
	// ErrRealClock is returned by fake-only operations while the real clock
	// is active.
	ErrRealClock = errors.New("operation requires the fake clock")

	// ErrUnsupportedMultiplier is returned for speeds other than Speeds.
	ErrUnsupportedMultiplier = errors.New("unsupported clock multiplier")
)
