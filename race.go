package daemonizer

import (
	"fmt"
	"time"
)

// result pairs a value with an error for channel transport.
type result[T any] struct {
	value T
	err   error
}

// WithCancel races op against src firing.
//
// If src is nil (or carries a nil signal), op is called inline with no
// overhead. If src has already fired, WithCancel returns a *CancelError
// immediately; op is still started in the background, because cancellation
// is cooperative signaling rather than preemption, but its result is
// discarded. If src fires while op is pending, the *CancelError carries the
// fire reason and op is likewise abandoned.
//
// The result channel is buffered, so an abandoned op completes and its
// goroutine exits without anyone receiving.
func WithCancel[T any](op func() (T, error), src Source) (T, error) {
	sig := signalOf(src)
	if sig == nil {
		return op()
	}

	if sig.Canceled() {
		go func() { _, _ = op() }()
		var zero T
		return zero, &CancelError{Reason: sig.Reason()}
	}

	ch := make(chan result[T], 1)
	go func() {
		v, err := op()
		ch <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-sig.Done():
		var zero T
		return zero, &CancelError{Reason: sig.Reason()}
	}
}

// WithTimeout races op against a deadline of d, and optionally against an
// external cancellation source.
//
// An internal signal is scheduled to fire after d with a *TimeoutError
// reason, then merged with the external signal (if any); op receives the
// merged signal, so it can observe why it was asked to stop. The scheduled
// timer is always stopped on exit, and the registrations the merge placed
// on the inputs are always removed, whichever side wins; a long-lived
// external signal never accumulates listeners from completed calls.
//
// Outcomes:
//   - op finishes first: its result.
//   - the deadline fires first: a *TimeoutError.
//   - the external source fires first: a *CancelError with its reason.
//
// The deadline is recognized by identity, so an external fire whose reason
// happens to be a *TimeoutError still classifies as a cancellation.
//
// A losing op is abandoned, not awaited; it may complete in the background
// with no observable effect.
func WithTimeout[T any](op func(sig *CancelSignal) (T, error), d time.Duration, external Source) (T, error) {
	ctrl := NewCancelControl()
	deadline := &TimeoutError{Message: fmt.Sprintf("operation exceeded %v budget", d)}
	timer := time.AfterFunc(d, func() {
		ctrl.Cancel(deadline)
	})
	defer timer.Stop()

	merged, release := merge(ctrl.Signal(), signalOf(external))
	defer release()

	ch := make(chan result[T], 1)
	go func() {
		v, err := op(merged)
		ch <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-merged.Done():
		var zero T
		if reason, ok := merged.Reason().(*TimeoutError); ok && reason == deadline {
			return zero, deadline
		}
		return zero, &CancelError{Reason: merged.Reason()}
	}
}
