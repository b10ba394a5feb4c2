package daemonizer

import (
	"runtime"
	"time"
)

// DefaultFairnessInterval is the default budget between cooperative yields,
// chosen to approximate one scheduler frame.
const DefaultFairnessInterval = 8 * time.Millisecond

// Yielder is a time-interval gate deciding when a busy loop should cede
// control to the scheduler. Under load the common case is "interval not yet
// elapsed", which costs one monotonic clock read and no scheduling; when
// the interval has elapsed, the goroutine yields once and the gate resets.
// Sparse work never triggers a fixed-rate tick.
//
// A Yielder is owned by a single loop and is not safe for concurrent use.
type Yielder struct {
	lastYield time.Time
	interval  time.Duration
}

// NewYielder creates a gate with the given interval. Non-positive intervals
// fall back to DefaultFairnessInterval.
func NewYielder(interval time.Duration) *Yielder {
	if interval <= 0 {
		interval = DefaultFairnessInterval
	}
	return &Yielder{interval: interval, lastYield: time.Now()}
}

// MaybeYield yields the processor if at least one interval has elapsed
// since the last yield, and reports whether it did. The gate resets to the
// post-yield time, so time spent suspended does not count against the next
// interval.
func (y *Yielder) MaybeYield() bool {
	if time.Since(y.lastYield) < y.interval {
		return false
	}
	runtime.Gosched()
	y.lastYield = time.Now()
	return true
}
