package daemonizer

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrInvalidCapacity is returned when a Queue is constructed with a
	// non-positive capacity.
	ErrInvalidCapacity = errors.New("daemonizer: queue capacity must be positive")

	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("daemonizer: loop is already running")

	// ErrLoopStopped is returned when Run is called on a loop that has
	// already stopped. A loop runs at most once.
	ErrLoopStopped = errors.New("daemonizer: loop has stopped")

	// ErrDaemonClosed is returned by Daemon.Close when called after the
	// daemon has already been closed.
	ErrDaemonClosed = errors.New("daemonizer: daemon is closed")
)

// CancelError represents an operation that was stopped because a
// CancelSignal it was racing against fired.
//
// All CancelError values match each other via [errors.Is], so callers can
// classify failures with:
//
//	if errors.Is(err, &CancelError{}) {
//	    // stopped by cancellation
//	}
//
// The more precise form is [errors.As], which also exposes the reason.
type CancelError struct {
	// Reason contains the value passed to CancelControl.Cancel.
	Reason any
}

// Error implements the error interface.
func (e *CancelError) Error() string {
	switch r := e.Reason.(type) {
	case nil:
		return "daemonizer: operation canceled"
	case string:
		return "daemonizer: canceled: " + r
	case error:
		return "daemonizer: canceled: " + r.Error()
	default:
		return fmt.Sprintf("daemonizer: canceled: %v", r)
	}
}

// Is implements errors.Is support for CancelError.
// Any two CancelError values match, regardless of reason.
func (e *CancelError) Is(target error) bool {
	_, ok := target.(*CancelError)
	return ok
}

// Unwrap returns the underlying error if Reason is an error type, enabling
// [errors.Is] and [errors.As] matching through the cause chain.
//
// If Reason is not an error, returns nil.
func (e *CancelError) Unwrap() error {
	if err, ok := e.Reason.(error); ok {
		return err
	}
	return nil
}

// TimeoutError represents an operation that exceeded its time budget.
//
// It is the cancellation reason used by [WithTimeout]'s internal signal, and
// the error returned when that signal fires first. The event loop swallows
// per-event TimeoutError failures when running with a strict interval; every
// other caller observes it as a genuine failure.
type TimeoutError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "daemonizer: operation timed out"
	}
	return "daemonizer: " + e.Message
}

// Is implements errors.Is support for TimeoutError.
// Any two TimeoutError values match.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// Unwrap returns the underlying cause for use with [errors.Is] and
// [errors.As].
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
