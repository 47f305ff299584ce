package serial

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

var (
	// ErrStopped is returned by Forwarder.Run after Stop.
	ErrStopped = errors.New("serial: forwarder stopped")
	// ErrEmptyPath means a device specification has nothing before the comma.
	ErrEmptyPath = errors.New("serial: empty device path")
	// ErrInvalidBaud means the part after the comma is not a positive integer.
	ErrInvalidBaud = errors.New("serial: invalid baud rate")
)

// RelayError reports which device ended a relay and why. Read errors,
// including io.EOF, and write errors both end the relay.
type RelayError struct {
	Op     string // "read" or "write"
	Device string
	Err    error
}

func (e *RelayError) Error() string {
	return e.Op + " " + e.Device + ": " + e.Err.Error()
}

func (e *RelayError) Unwrap() error { return e.Err }

// Reason classifies the cause as "EOF", "interrupted" or "error".
func (e *RelayError) Reason() string {
	switch {
	case errors.Is(e.Err, io.EOF):
		return "EOF"
	case errors.Is(e.Err, unix.EINTR):
		return "interrupted"
	default:
		return "error"
	}
}
