package serialport

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined error types, checked with errors.Is
var (
	ErrInvalidOption        = errors.New("invalid option")
	ErrNotOpen              = errors.New("serialport not open")
	ErrAlreadyOpen          = errors.New("serialport already open")
	// ErrCouldNotOpen carries "Could not open port." in Go error casing.
	ErrCouldNotOpen         = errors.New("could not open port")
	ErrDisconnected         = errors.New("disconnected")
	ErrTransportUnavailable = errors.New("no access to serial ports: transport unavailable")
)

// OptionError reports which option was rejected during normalization.
type OptionError struct {
	Field string
	Value any
	// Valid lists the accepted values, if the set is closed.
	Valid []string
}

func (e *OptionError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("invalid %q: %v", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %q: %v (valid: %s)", e.Field, e.Value, strings.Join(e.Valid, ", "))
}

func (e *OptionError) Unwrap() error {
	return ErrInvalidOption
}

func invalidOption(field string, value any, valid ...string) error {
	return &OptionError{Field: field, Value: value, Valid: valid}
}

// DisconnectError carries the receive-error condition that ended a session.
type DisconnectError struct {
	Condition string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnected: %s", e.Condition)
}

func (e *DisconnectError) Unwrap() error {
	return ErrDisconnected
}
