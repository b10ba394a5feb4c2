package daemonizer

import (
	"github.com/joeycumines/logiface"
)

// Structured logging integrates via logiface, matching the rest of this
// module family: a logger is attached with WithLogger, and every log site
// carries a "component" field naming the subsystem that emitted it. A nil
// logger disables logging entirely; logiface builders are nil-safe, so log
// sites pay only a nil check when disabled.

// Log component names.
const (
	componentQueue  = "queue"
	componentLoop   = "loop"
	componentDaemon = "daemon"
)

// componentLogger derives a sub-logger with the component field bound, or
// nil if logger is nil or disabled.
func componentLogger(logger *logiface.Logger[logiface.Event], component string) *logiface.Logger[logiface.Event] {
	return logger.Clone().
		Str("component", component).
		Logger()
}
