package daemonizer

import (
	"errors"
	"sync"

	"github.com/joeycumines/logiface"
)

// Daemon wires a Queue, a TaskGroup, and an EventLoop behind a push/close
// facade: events go in through Push, a single loop goroutine dispatches
// them to the handler, and Close drains and stops everything.
//
// Start returns the Daemon as an explicit handle to the background loop;
// there is no hidden work beyond the one goroutine the handle owns, and its
// lifetime is observable through Wait and Close.
type Daemon[T any] struct {
	queue   *Queue[T]
	group   *TaskGroup
	control *CancelControl
	signal  *CancelSignal
	loop     *EventLoop[T]
	metrics  *metrics
	log      *logiface.Logger[logiface.Event]
	queueLog *logiface.Logger[logiface.Event]

	closeOnce sync.Once
	done      chan struct{}
	runErr    error // written before done is closed
}

// Start builds the queue, group, and loop, launches the loop goroutine,
// and returns the handle. The handler runs serially, one event at a time.
//
// An external cancellation source given via WithSource is merged with the
// daemon's own Kill signal; either stops the loop.
func Start[T any](handler Handler[T], opts ...Option) (*Daemon[T], error) {
	if handler == nil {
		return nil, errors.New("daemonizer: nil handler")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue[T](cfg.bufferSize)
	if err != nil {
		return nil, err
	}

	control := NewCancelControl()
	signal := control.Signal()
	if external := signalOf(cfg.source); external != nil {
		signal = Merge(signal, external)
	}

	group := cfg.group
	if group == nil {
		group = new(TaskGroup)
	}

	loopCfg := *cfg
	loopCfg.source = signal
	loopCfg.group = group
	loop := newEventLoop(&loopCfg, queue, handler)

	d := &Daemon[T]{
		queue:    queue,
		group:    group,
		control:  control,
		signal:   signal,
		loop:     loop,
		metrics:  loop.metrics,
		log:      componentLogger(cfg.logger, componentDaemon),
		queueLog: componentLogger(cfg.logger, componentQueue),
		done:     make(chan struct{}),
	}

	go func() {
		err := loop.Run()
		d.runErr = err
		close(d.done)
	}()

	d.log.Debug().
		Int("buffer_size", cfg.bufferSize).
		Dur("fairness_interval", cfg.fairnessInterval).
		Bool("strict_interval", cfg.strictInterval).
		Log("daemon started")

	return d, nil
}

// Push enqueues an event for the loop, blocking for backpressure while the
// queue is at capacity. It returns false once the daemon is closed or
// killed; a false return means the event was not accepted.
func (d *Daemon[T]) Push(event T) bool {
	if d.queue.TryPush(event) {
		return true
	}
	ok, err := d.queue.Push(d.signal, event)
	if err != nil || !ok {
		d.metrics.recordDroppedPush()
		d.queueLog.Debug().Log("push rejected: queue unavailable")
		return false
	}
	return true
}

// Close stops accepting events, waits until the loop has drained the queue
// and fully stopped, and returns the loop's fatal error, if any. Calls
// after the first wait for the same shutdown and return ErrDaemonClosed.
func (d *Daemon[T]) Close() error {
	var first bool
	d.closeOnce.Do(func() {
		first = true
		d.log.Debug().Log("daemon closing")
		d.queue.Close()
		d.queueLog.Debug().Int("buffered", d.queue.Len()).Log("queue closed")
		_ = d.group.Wait(nil)
		<-d.done
	})
	if !first {
		<-d.done
		return ErrDaemonClosed
	}
	return d.runErr
}

// Kill fires the daemon's cancellation with the given reason. The loop
// stops without draining; events left in the queue are discarded when the
// daemon is closed. Kill does not block; use Wait or Close to observe the
// stop.
func (d *Daemon[T]) Kill(reason any) {
	d.control.Cancel(reason)
}

// Wait blocks until the loop has stopped, without initiating shutdown, and
// returns the loop's fatal error, if any. If sig fires first, Wait returns
// a *CancelError and the daemon is unaffected.
func (d *Daemon[T]) Wait(sig *CancelSignal) error {
	if sig == nil {
		<-d.done
		return d.runErr
	}
	select {
	case <-d.done:
		return d.runErr
	case <-sig.Done():
		return sig.Err()
	}
}

// Signal returns the daemon's merged cancellation signal, making *Daemon a
// carrier variant of [Source]: operations coupled to the daemon's lifetime
// can race against it.
func (d *Daemon[T]) Signal() *CancelSignal {
	return d.signal
}

// State returns the loop's current state.
func (d *Daemon[T]) State() LoopState {
	return d.loop.State()
}

// Metrics returns a snapshot of the daemon's counters, including the queue
// depth high watermark. Zero when metrics collection is disabled.
func (d *Daemon[T]) Metrics() MetricsSnapshot {
	if d.metrics == nil {
		return MetricsSnapshot{}
	}
	snap := d.metrics.snapshot()
	snap.QueueHighWater = d.queue.highWatermark()
	return snap
}

// Len returns the number of events currently buffered. Diagnostics only.
func (d *Daemon[T]) Len() int {
	return d.queue.Len()
}

// Cap returns the queue capacity.
func (d *Daemon[T]) Cap() int {
	return d.queue.Cap()
}
