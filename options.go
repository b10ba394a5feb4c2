package daemonizer

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultBufferSize is the queue capacity used when WithBufferSize is not
// given.
const DefaultBufferSize = 16

// options holds resolved configuration shared by EventLoop and Daemon
// construction.
type options struct {
	logger           *logiface.Logger[logiface.Event]
	source           Source
	group            *TaskGroup
	bufferSize       int
	fairnessInterval time.Duration
	strictInterval   bool
	metricsEnabled   bool
}

// Option configures an EventLoop or Daemon.
type Option interface {
	apply(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*options) error
}

func (o *optionImpl) apply(opts *options) error {
	return o.applyFunc(opts)
}

// WithBufferSize sets the event queue capacity (Daemon only; a standalone
// EventLoop consumes whatever source it is given). Must be positive.
func WithBufferSize(n int) Option {
	return &optionImpl{func(opts *options) error {
		if n < 1 {
			return ErrInvalidCapacity
		}
		opts.bufferSize = n
		return nil
	}}
}

// WithFairnessInterval sets the budget between cooperative yields, and the
// per-event handler budget when the strict interval is enabled. Must be
// positive. Defaults to DefaultFairnessInterval.
func WithFairnessInterval(d time.Duration) Option {
	return &optionImpl{func(opts *options) error {
		if d <= 0 {
			return fmt.Errorf("daemonizer: fairness interval must be positive, got %v", d)
		}
		opts.fairnessInterval = d
		return nil
	}}
}

// WithStrictInterval controls whether each handler invocation is bounded by
// the fairness interval. When enabled, a handler that exceeds the interval
// is abandoned for that event and the loop moves on; the loop itself is not
// aborted. When disabled (default), slow handlers are tolerated, and the
// loop still yields on schedule afterward.
func WithStrictInterval(enabled bool) Option {
	return &optionImpl{func(opts *options) error {
		opts.strictInterval = enabled
		return nil
	}}
}

// WithSource attaches an external cancellation source. The loop stops
// cleanly when it fires; a Daemon merges it with its own Kill signal.
func WithSource(src Source) Option {
	return &optionImpl{func(opts *options) error {
		opts.source = src
		return nil
	}}
}

// WithTaskGroup registers the loop's lifetime with an existing group
// instead of a private one, so a caller can await several loops (or other
// work) together.
func WithTaskGroup(group *TaskGroup) Option {
	return &optionImpl{func(opts *options) error {
		opts.group = group
		return nil
	}}
}

// WithLogger attaches a structured logger. Loggers over concrete event
// types generalize via (*logiface.Logger[E]).Logger(). A nil logger
// disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables runtime counter collection, exposed via
// Daemon.Metrics or EventLoop.Metrics. Disabled by default; when disabled
// the accessors return a zero snapshot.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *options) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveOptions applies opts over defaults. Nil options are skipped.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		bufferSize:       DefaultBufferSize,
		fairnessInterval: DefaultFairnessInterval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
