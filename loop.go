package daemonizer

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// Handler processes one event. It receives the cancellation signal active
// for the dispatch (the loop's own signal, or a merged per-event timeout
// signal under a strict interval) so it can observe why it was asked to
// stop. Handlers run one at a time, serialized by the loop, and must be
// safe to abandon: a handler that loses a timeout or cancellation race
// keeps running in the background with its result discarded.
type Handler[T any] func(sig *CancelSignal, event T) error

// EventSource is the contract the loop consumes events through: dequeue the
// next value or report end-of-stream, blocking if necessary, failing fast
// when sig fires. *Queue satisfies it; so does any equivalent sequence
// abstraction.
type EventSource[T any] interface {
	Pop(sig *CancelSignal) (T, bool, error)
}

// EventLoop pulls events from a source and dispatches them to a handler,
// one at a time, under cancellation (and optionally a per-event timeout),
// yielding to the scheduler on a fairness interval between iterations.
//
// The loop's lifetime is registered with its TaskGroup for exactly the
// duration of Run, on every exit path, so Group().Wait observes completion
// whether the loop drained, was canceled, or failed.
type EventLoop[T any] struct {
	source   EventSource[T]
	handler  Handler[T]
	signal   *CancelSignal
	group    *TaskGroup
	yielder  *Yielder
	log      *logiface.Logger[logiface.Event]
	metrics  *metrics
	interval time.Duration
	strict   bool
	state    loopState
}

// NewEventLoop creates a loop over source and handler. See the Option
// functions for cancellation, task group, fairness, and strict interval
// configuration; WithBufferSize is ignored here (the source is external).
func NewEventLoop[T any](source EventSource[T], handler Handler[T], opts ...Option) (*EventLoop[T], error) {
	if source == nil {
		return nil, errors.New("daemonizer: nil event source")
	}
	if handler == nil {
		return nil, errors.New("daemonizer: nil handler")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return newEventLoop(cfg, source, handler), nil
}

// newEventLoop builds a loop from resolved options.
func newEventLoop[T any](cfg *options, source EventSource[T], handler Handler[T]) *EventLoop[T] {
	group := cfg.group
	if group == nil {
		group = new(TaskGroup)
	}
	var m *metrics
	if cfg.metricsEnabled {
		m = new(metrics)
	}
	return &EventLoop[T]{
		source:   source,
		handler:  handler,
		signal:   signalOf(cfg.source),
		group:    group,
		yielder:  NewYielder(cfg.fairnessInterval),
		log:      componentLogger(cfg.logger, componentLoop),
		metrics:  m,
		interval: cfg.fairnessInterval,
		strict:   cfg.strictInterval,
	}
}

// Run executes the loop and blocks until it stops. A loop runs at most
// once: a second Run returns ErrLoopAlreadyRunning while the first is in
// flight, or ErrLoopStopped afterwards.
//
// Exit conditions:
//   - the cancellation source fires: Run returns nil (clean stop);
//   - the event source reports end-of-stream: Run returns nil;
//   - the event source or handler fails with anything other than a
//     cancellation (or, under a strict interval, a per-event timeout): the
//     error is fatal and Run returns it.
//
// On every exit path, including fatal errors and handler panics, the loop
// transitions to StateStopped and releases its TaskGroup registration.
func (l *EventLoop[T]) Run() error {
	if !l.state.TryTransition(StateIdle, StateRunning) {
		if l.state.Load() == StateStopped {
			return ErrLoopStopped
		}
		return ErrLoopAlreadyRunning
	}

	l.group.Add(1)
	defer func() {
		l.state.Store(StateStopped)
		l.group.Done()
	}()

	l.log.Debug().
		Dur("fairness_interval", l.interval).
		Bool("strict_interval", l.strict).
		Log("loop started")

	for {
		event, ok, err := l.source.Pop(l.signal)
		if err != nil {
			if errors.Is(err, &CancelError{}) {
				l.log.Debug().Log("loop stopping: canceled")
				return nil
			}
			l.log.Err().Err(err).Log("event source failed")
			return err
		}
		if !ok {
			l.log.Debug().Log("loop stopping: event stream drained")
			return nil
		}

		switch err := l.dispatch(event); {
		case err == nil:
			l.metrics.recordProcessed()
		case l.strict && isDeadline(err):
			// Per-event budget blown: abandon this event, not the loop.
			l.metrics.recordTimeout()
			l.log.Debug().Dur("budget", l.interval).Log("handler abandoned: interval exceeded")
		case errors.Is(err, &CancelError{}):
			l.log.Debug().Log("loop stopping: canceled during dispatch")
			return nil
		default:
			l.metrics.recordFailure()
			l.log.Err().Err(err).Log("handler failed")
			return err
		}

		if l.yielder.MaybeYield() {
			l.metrics.recordYield()
		}
	}
}

// isDeadline reports whether err is exactly a dispatch deadline result.
// Cancellations that merely carry or wrap a timeout in their reason chain
// must not match; those classify as cancellations, not as a blown per-event
// budget.
func isDeadline(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

// dispatch runs the handler for one event under the loop's cancellation
// source, bounded by the fairness interval when strict.
func (l *EventLoop[T]) dispatch(event T) error {
	if l.strict {
		_, err := WithTimeout(func(sig *CancelSignal) (struct{}, error) {
			return struct{}{}, l.handler(sig, event)
		}, l.interval, l.signal)
		return err
	}
	_, err := WithCancel(func() (struct{}, error) {
		return struct{}{}, l.handler(l.signal, event)
	}, l.signal)
	return err
}

// Group returns the TaskGroup the loop's lifetime is registered with.
func (l *EventLoop[T]) Group() *TaskGroup {
	return l.group
}

// State returns the current loop state.
func (l *EventLoop[T]) State() LoopState {
	return l.state.Load()
}

// Metrics returns a snapshot of the loop's counters. Zero when metrics
// collection is disabled.
func (l *EventLoop[T]) Metrics() MetricsSnapshot {
	return l.metrics.snapshot()
}
