package device

import "errors"

// Domain errors for the device package.
var (
	// ErrNoDevice is returned when no candidate serial port exists and
	// the session is not configured to wait for one.
	ErrNoDevice = errors.New("device: no serial device found")

	// ErrStopped is returned once the session has reached its terminal
	// state; no further reads are possible.
	ErrStopped = errors.New("device: session stopped")

	// ErrReadTimeout is returned by a Port when the read deadline
	// expires without a complete line. It is a normal idle condition,
	// not a link failure.
	ErrReadTimeout = errors.New("device: read timed out")

	// ErrOpenFailed is returned when a candidate port cannot be opened.
	ErrOpenFailed = errors.New("device: opening port failed")
)
