package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrProvider is matched by every error returned from a provider call.
	ErrProvider = errors.New("provider error")

	// ErrUnavailable indicates a call to a disabled or unconfigured provider.
	ErrUnavailable = errors.New("provider unavailable")
)

// Error describes a failed provider call.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Provider
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrProvider and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProvider}
	}
	return []error{ErrProvider, e.Err}
}

// Unavailable returns the error reported by a provider that cannot serve calls.
func Unavailable(name, reason string) error {
	return &Error{Provider: name, Err: fmt.Errorf("%w: %s", ErrUnavailable, reason)}
}

// Errorf wraps a formatted cause as a provider error for op.
func Errorf(name, op, format string, args ...any) error {
	return &Error{Provider: name, Op: op, Err: fmt.Errorf(format, args...)}
}
