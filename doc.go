// Package daemonizer provides the building blocks for a long-lived,
// cancellable event-processing loop over a bounded stream of events, with
// coordinated shutdown: a fixed-capacity queue with backpressure, a task
// group for awaiting dynamic sets of work, composable cancellation with
// timeouts, a fairness yielder, and the event loop that ties them together
// behind a push/close [Daemon] facade.
//
// # Architecture
//
// Producers push events through a [Queue], which blocks them when the
// buffer is at capacity. A single [EventLoop] goroutine pops events and
// dispatches them to a [Handler], serialized, under the loop's
// [CancelSignal], optionally bounded per event by the fairness interval
// (WithStrictInterval). Between iterations the loop yields to the scheduler
// whenever a fairness interval has elapsed, so a busy loop cannot starve
// other goroutines of a cooperative slot. The loop registers its lifetime
// with a [TaskGroup], which is how Close and Wait observe completion on
// every exit path.
//
// Cancellation is a first-class capability: a [CancelControl] owns the
// authority to fire, a [CancelSignal] is the observable half handed to
// operations, [Merge] composes several signals into first-fires-wins, and
// [WithTimeout] derives a deadline-bounded signal. Firing a signal never
// preempts in-flight work; it fails fast anything explicitly racing against
// the signal, and abandoned operations finish in the background with their
// results discarded.
//
// # Thread Safety
//
// Queue, TaskGroup, CancelSignal, CancelControl, and Daemon are safe for
// concurrent use from any goroutine. A Yielder belongs to a single loop.
// An EventLoop runs at most once; Run is safe to race, with exactly one
// caller winning.
//
// # Usage
//
//	d, err := daemonizer.Start(func(sig *daemonizer.CancelSignal, event string) error {
//	    fmt.Println("handling", event)
//	    return nil
//	}, daemonizer.WithBufferSize(64))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	d.Push("hello")
//	d.Push("world")
//
//	if err := d.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Classification
//
// The loop distinguishes failure kinds with [errors.Is]/[errors.As] rather
// than error identity:
//   - [CancelError]: an operation lost a race against a fired signal; the
//     loop treats it as a clean stop.
//   - [TimeoutError]: an operation exceeded its budget; the loop swallows
//     it per event under a strict interval, every other caller sees it as
//     a failure.
//   - anything else from the handler or event source is fatal: it
//     propagates out of Run (and out of Close), after the loop's TaskGroup
//     registration is released.
package daemonizer
