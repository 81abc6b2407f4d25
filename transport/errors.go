package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConnection is returned for operations on an id the transport does not know.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrUnsupportedBitrate is returned when the platform cannot run at the requested rate.
	ErrUnsupportedBitrate = errors.New("unsupported bitrate")
)

// PlatformError is the error a transport returns when a platform call fails.
// Sessions forward it to their callers untouched.
type PlatformError struct {
	Op   string
	Path string
	Err  error
}

func (e *PlatformError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}
