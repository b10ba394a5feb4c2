package daemonizer

import "sync"

// TaskGroup tracks a dynamic set of in-flight operations by counter: Add
// before starting work, Done when a unit finishes, Wait to block until the
// counter returns to zero. Unlike sync.WaitGroup, Wait can be abandoned via
// a CancelSignal, and waiters registered while the counter is zero return
// immediately.
//
// The zero value is ready to use.
//
// Waiters released by the same transition to zero are released together,
// with no ordering guarantee among them.
//
// Thread Safety: all methods are safe for concurrent use.
type TaskGroup struct {
	waiters []chan struct{}
	mu      sync.Mutex
	count   int
}

// Add adds delta (typically 1 per launched task, possibly negative) to the
// counter. If the counter reaches zero, every current waiter is released.
// Add panics if the counter becomes negative: one Done too many is a caller
// bug, and wedging future Wait calls silently would be worse than failing
// loudly.
func (g *TaskGroup) Add(delta int) {
	g.mu.Lock()
	g.count += delta
	if g.count < 0 {
		g.mu.Unlock()
		panic("daemonizer: negative TaskGroup counter")
	}
	var waiters []chan struct{}
	if g.count == 0 && delta != 0 {
		waiters = g.waiters
		g.waiters = nil
	}
	g.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// Done decrements the counter by one. It must be called exactly once per
// previously added unit of work.
func (g *TaskGroup) Done() {
	g.Add(-1)
}

// Wait blocks until the counter is zero. If the counter is already zero it
// returns immediately without blocking. If sig fires while waiting, the
// waiter is deregistered and a *CancelError is returned; the group itself
// is unaffected. A nil sig blocks indefinitely.
func (g *TaskGroup) Wait(sig *CancelSignal) error {
	g.mu.Lock()
	if g.count == 0 {
		g.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	if sig == nil {
		<-w
		return nil
	}
	select {
	case <-w:
		return nil
	case <-sig.Done():
		g.mu.Lock()
		for i, x := range g.waiters {
			if x == w {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return sig.Err()
			}
		}
		g.mu.Unlock()
		// Released concurrently with the fire; treat as completed.
		<-w
		return nil
	}
}
