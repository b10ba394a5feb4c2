package daemonizer

import "sync/atomic"

// LoopState represents the lifecycle state of an event loop.
//
// State machine:
//
//	StateIdle    → StateRunning  [Run]
//	StateRunning → StateStopped  [cancellation, end-of-stream, or fatal error]
//	StateStopped → (terminal)
//
// Transitions into Running use CAS (TryTransition), so at most one Run call
// wins; the transition to Stopped is irreversible and uses Store.
type LoopState uint32

const (
	// StateIdle indicates the loop has been created but not started.
	StateIdle LoopState = iota
	// StateRunning indicates the loop is actively processing events.
	StateRunning
	// StateStopped indicates the loop has exited. Terminal; reached exactly
	// once, on every exit path.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// loopState is an atomic holder for LoopState transitions.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state. Reserved for irreversible states.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to
// another, reporting success.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
