package daemonizer

import "sync/atomic"

// metrics tracks runtime counters for a loop. Collection is optional; a nil
// *metrics no-ops every recorder, so disabled metrics cost a nil check per
// event and nothing else.
//
// Thread Safety: all counters are atomic; snapshot returns a copy.
type metrics struct {
	processed     atomic.Uint64
	timeouts      atomic.Uint64
	failures      atomic.Uint64
	yields        atomic.Uint64
	pushesDropped atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of a daemon's counters, safe to
// retain and compare. Values are zero when metrics collection is disabled.
type MetricsSnapshot struct {
	// EventsProcessed counts events whose handler returned without error.
	EventsProcessed uint64
	// HandlerTimeouts counts events abandoned under a strict interval.
	HandlerTimeouts uint64
	// HandlerFailures counts fatal handler errors (at most one per loop).
	HandlerFailures uint64
	// Yields counts cooperative yields performed by the loop.
	Yields uint64
	// PushesDropped counts Daemon.Push calls that returned false.
	PushesDropped uint64
	// QueueHighWater is the maximum buffered queue depth observed.
	QueueHighWater int
}

func (m *metrics) recordProcessed() {
	if m != nil {
		m.processed.Add(1)
	}
}

func (m *metrics) recordTimeout() {
	if m != nil {
		m.timeouts.Add(1)
	}
}

func (m *metrics) recordFailure() {
	if m != nil {
		m.failures.Add(1)
	}
}

func (m *metrics) recordYield() {
	if m != nil {
		m.yields.Add(1)
	}
}

func (m *metrics) recordDroppedPush() {
	if m != nil {
		m.pushesDropped.Add(1)
	}
}

func (m *metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		EventsProcessed: m.processed.Load(),
		HandlerTimeouts: m.timeouts.Load(),
		HandlerFailures: m.failures.Load(),
		Yields:          m.yields.Load(),
		PushesDropped:   m.pushesDropped.Load(),
	}
}
