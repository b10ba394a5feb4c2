package daemonizer

import (
	"sync"
)

// CancelSignal is the observable half of a cancellation capability: it
// answers "has a stop been requested, and why". Signals are created by a
// [CancelControl] (or derived via [Merge] / [WithTimeout]) and handed to the
// operations that should observe the stop request.
//
// Cancellation is advisory. A fired signal never forcibly terminates
// in-flight work; it only causes code explicitly racing against the signal
// (queue waits, [WithCancel], [WithTimeout], the event loop) to fail fast
// with the fire reason.
//
// A nil *CancelSignal is valid everywhere a signal is accepted, and means
// "never canceled".
//
// Thread Safety: all methods are safe for concurrent use.
type CancelSignal struct {
	reason   any
	done     chan struct{} // lazily created, closed on fire
	handlers []cancelHandler
	mu       sync.RWMutex
	nextID   uint64
	canceled bool
}

type cancelHandler struct {
	fn func(reason any)
	id uint64
}

func newCancelSignal() *CancelSignal {
	return &CancelSignal{}
}

// Canceled reports whether the signal has fired.
func (s *CancelSignal) Canceled() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canceled
}

// Reason returns the fire reason, or nil if the signal has not fired or no
// reason was provided.
func (s *CancelSignal) Reason() any {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Err returns nil if the signal has not fired, and a *CancelError carrying
// the fire reason otherwise.
func (s *CancelSignal) Err() error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.canceled {
		return nil
	}
	return &CancelError{Reason: s.reason}
}

// Done returns a channel that is closed when the signal fires. The channel
// is allocated on first use; repeated calls return the same channel.
//
// Done returns nil on a nil signal. A nil channel blocks forever in a
// select, which is exactly the "never canceled" behavior callers want.
func (s *CancelSignal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
		if s.canceled {
			close(s.done)
		}
	}
	return s.done
}

// OnCancel registers a callback invoked when the signal fires, and returns
// an unsubscribe function that removes the registration.
//
// If the signal has already fired, the callback is invoked immediately (on
// the calling goroutine) and the returned unsubscribe is a no-op. Callbacks
// registered before the fire are invoked in registration order, outside the
// signal's lock. Unsubscribe is idempotent and safe after the fire.
//
// Composed signals must unsubscribe once they no longer need a source, so a
// long-lived source does not accumulate listeners.
func (s *CancelSignal) OnCancel(handler func(reason any)) (unsubscribe func()) {
	if s == nil || handler == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.canceled {
		reason := s.reason
		s.mu.Unlock()
		handler(reason)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, cancelHandler{fn: handler, id: id})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// Signal returns the signal itself, making *CancelSignal the direct variant
// of [Source].
func (s *CancelSignal) Signal() *CancelSignal {
	return s
}

// cancel fires the signal. Only the first call has any effect.
func (s *CancelSignal) cancel(reason any) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	s.reason = reason
	if s.done != nil {
		close(s.done)
	}
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	// Invoke outside the lock so handlers may interact with the signal.
	for _, h := range handlers {
		h.fn(reason)
	}
}

// CancelControl owns a [CancelSignal] and exposes the authority to fire it.
// Holders of the signal can only observe; holders of the control can cancel.
//
// Thread Safety: safe for concurrent use; Cancel may be called from any
// goroutine, any number of times.
type CancelControl struct {
	signal *CancelSignal
}

// NewCancelControl creates a control with a fresh, unfired signal.
func NewCancelControl() *CancelControl {
	return &CancelControl{signal: newCancelSignal()}
}

// Signal returns the control's signal. Always returns the same signal, so
// *CancelControl is a carrier variant of [Source].
func (c *CancelControl) Signal() *CancelSignal {
	return c.signal
}

// Cancel fires the control's signal with the given reason. The first call
// wins; later calls (and later reasons) have no effect.
func (c *CancelControl) Cancel(reason any) {
	c.signal.cancel(reason)
}

// Source is anything that can expose a CancelSignal: either a signal itself
// (the direct variant) or a value that carries one alongside other state,
// such as a [CancelControl] or a [Daemon].
type Source interface {
	Signal() *CancelSignal
}

// signalOf extracts the signal from an optional source. A nil source, or a
// source carrying a nil signal, yields nil ("never canceled").
func signalOf(src Source) *CancelSignal {
	if src == nil {
		return nil
	}
	return src.Signal()
}

// Merge produces one derived signal that fires the moment any input signal
// fires, carrying that signal's reason. Later fires of other inputs are
// ignored, and their registrations are removed as soon as the first fire
// wins, so no listeners leak on long-lived inputs.
//
// Nil signals are skipped. If an input has already fired when Merge is
// called, the derived signal fires synchronously with that reason and no
// registrations are made at all. With no (non-nil) inputs the derived
// signal never fires.
//
// Simultaneous fires are resolved by input order; treat the tie-break as
// unspecified.
func Merge(signals ...*CancelSignal) *CancelSignal {
	merged, _ := merge(signals...)
	return merged
}

// merge is Merge returning a release func alongside the derived signal.
// Release removes every outstanding registration from the inputs without
// firing the derived signal; derivations with a bounded lifetime (such as
// WithTimeout) release on exit so a long-lived input does not accumulate
// listeners from completed operations. Release is idempotent and safe to
// race with a fire, which performs the same cleanup itself.
func merge(signals ...*CancelSignal) (*CancelSignal, func()) {
	merged := newCancelSignal()

	// Fast path: an already-fired input wins without any registration.
	for _, sig := range signals {
		if sig.Canceled() {
			merged.cancel(sig.Reason())
			return merged, func() {}
		}
	}

	var (
		mu       sync.Mutex
		once     sync.Once
		unsubs   []func()
		released bool
	)
	release := func() {
		mu.Lock()
		released = true
		pending := unsubs
		unsubs = nil
		mu.Unlock()
		for _, u := range pending {
			u()
		}
	}
	for _, sig := range signals {
		if sig == nil {
			continue
		}
		unsub := sig.OnCancel(func(reason any) {
			once.Do(func() {
				merged.cancel(reason)
				release()
			})
		})
		mu.Lock()
		if released {
			// This input fired (or the caller released) during registration;
			// the winner's own registration was already consumed, but
			// unsubscribing is harmless, and any source registered after the
			// cleanup must be dropped here.
			mu.Unlock()
			unsub()
			continue
		}
		unsubs = append(unsubs, unsub)
		mu.Unlock()
	}

	return merged, release
}
