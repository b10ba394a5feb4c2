package daemonizer

import (
	"iter"
	"sync"
)

// wakeReason is the private wake token handed to a blocked producer. No
// external API depends on its identity.
type wakeReason uint8

const (
	// wakeDelivered means the producer's value was accepted into the queue.
	wakeDelivered wakeReason = iota
	// wakeClosed means the queue closed while the producer was blocked; the
	// value was not accepted.
	wakeClosed
)

// popResult carries a dequeued value, or end-of-stream when ok is false.
type popResult[T any] struct {
	value T
	ok    bool
}

// consumerWaiter is a blocked Pop. The channel is buffered so handoff never
// blocks the producer side.
type consumerWaiter[T any] struct {
	ch chan popResult[T]
}

// producerWaiter is a blocked Push, holding the value it wants to enqueue.
// The value is transferred into the buffer by whichever Pop frees a slot,
// preserving first-registered-first-served order among producers.
type producerWaiter[T any] struct {
	value T
	ch    chan wakeReason
}

// Queue is a fixed-capacity FIFO providing backpressure between producers
// and a consumer. Producers block (or fail fast, via TryPush) when the
// buffer is at capacity; consumers block when it is empty. Closing the
// queue releases every waiter, and draining continues until the buffer
// empties, after which reads report end-of-stream.
//
// Ordering: values are delivered in the order the enqueue calls were
// accepted. A value handed directly to a waiting consumer bypasses the
// buffer, which is only possible when the buffer is already empty, so the
// bypass cannot reorder. Blocked producers and blocked consumers are each
// served strictly first-registered-first-served.
//
// Thread Safety: all methods are safe for concurrent use. The buffer and
// waiter lists are guarded by a single mutex; waiter channels are buffered
// so no handoff ever blocks while the mutex is held.
type Queue[T any] struct {
	buf       []T // ring storage; len(buf) == capacity
	consumers []*consumerWaiter[T]
	producers []*producerWaiter[T]
	mu        sync.Mutex
	head      int
	count     int
	highWater int
	closed    bool
}

// NewQueue creates a queue with the given fixed capacity. Returns
// ErrInvalidCapacity if capacity is not positive.
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Queue[T]{buf: make([]T, capacity)}, nil
}

// TryPush attempts to enqueue without blocking. It returns false if the
// queue is closed or the buffer is at capacity with no consumer waiting.
//
// When a consumer is blocked in Pop, the value is handed to the oldest one
// directly, bypassing the buffer.
func (q *Queue[T]) TryPush(value T) bool {
	q.mu.Lock()
	ok, handoff := q.tryPushLocked(value)
	q.mu.Unlock()
	if handoff != nil {
		handoff.ch <- popResult[T]{value: value, ok: true}
	}
	return ok
}

// tryPushLocked is the non-blocking enqueue step. It returns the consumer
// to hand the value to, if any; the caller must complete the handoff after
// releasing the mutex (the channel is buffered, but sending outside the
// critical section keeps the lock hold time minimal).
func (q *Queue[T]) tryPushLocked(value T) (bool, *consumerWaiter[T]) {
	if q.closed {
		return false, nil
	}
	if len(q.consumers) > 0 {
		// A waiting consumer implies an empty buffer.
		c := q.consumers[0]
		q.consumers = q.consumers[1:]
		return true, c
	}
	if q.count < len(q.buf) {
		q.buf[(q.head+q.count)%len(q.buf)] = value
		q.count++
		if q.count > q.highWater {
			q.highWater = q.count
		}
		return true, nil
	}
	return false, nil
}

// Push enqueues value, blocking while the buffer is at capacity. It returns
// (false, nil) if the queue is closed before or while waiting, and
// (false, *CancelError) if sig fires while waiting. A nil sig blocks
// indefinitely.
func (q *Queue[T]) Push(sig *CancelSignal, value T) (bool, error) {
	if err := sig.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	ok, handoff := q.tryPushLocked(value)
	if ok || q.closed {
		q.mu.Unlock()
		if handoff != nil {
			handoff.ch <- popResult[T]{value: value, ok: true}
		}
		return ok, nil
	}
	w := &producerWaiter[T]{value: value, ch: make(chan wakeReason, 1)}
	q.producers = append(q.producers, w)
	q.mu.Unlock()

	if sig == nil {
		return <-w.ch == wakeDelivered, nil
	}
	select {
	case r := <-w.ch:
		return r == wakeDelivered, nil
	case <-sig.Done():
		q.mu.Lock()
		removed := q.removeProducer(w)
		q.mu.Unlock()
		if removed {
			return false, sig.Err()
		}
		// Lost the race: the value was already taken (or the queue closed)
		// between the fire and the removal attempt.
		return <-w.ch == wakeDelivered, nil
	}
}

// Pop dequeues the oldest value. It returns ok=false (end-of-stream) once
// the queue is closed and drained. While the queue is open and empty, Pop
// blocks until a value or closure arrives; if sig fires first, it returns a
// *CancelError. A nil sig blocks indefinitely.
func (q *Queue[T]) Pop(sig *CancelSignal) (T, bool, error) {
	var zero T
	if err := sig.Err(); err != nil {
		return zero, false, err
	}

	q.mu.Lock()
	// Serve the oldest blocked producer before inspecting the buffer, so a
	// full buffer cannot starve producers while the queue drains. A blocked
	// producer implies the buffer is at capacity: pop the oldest value and
	// transfer the producer's value into the freed slot in one step.
	if len(q.producers) > 0 {
		p := q.producers[0]
		q.producers = q.producers[1:]
		value := q.popLocked()
		q.buf[(q.head+q.count)%len(q.buf)] = p.value
		q.count++
		q.mu.Unlock()
		p.ch <- wakeDelivered
		return value, true, nil
	}
	if q.count > 0 {
		value := q.popLocked()
		q.mu.Unlock()
		return value, true, nil
	}
	if q.closed {
		q.mu.Unlock()
		return zero, false, nil
	}
	w := &consumerWaiter[T]{ch: make(chan popResult[T], 1)}
	q.consumers = append(q.consumers, w)
	q.mu.Unlock()

	if sig == nil {
		r := <-w.ch
		return r.value, r.ok, nil
	}
	select {
	case r := <-w.ch:
		return r.value, r.ok, nil
	case <-sig.Done():
		q.mu.Lock()
		removed := q.removeConsumer(w)
		q.mu.Unlock()
		if removed {
			return zero, false, sig.Err()
		}
		// A handoff was already committed to this waiter; take it rather
		// than lose the value.
		r := <-w.ch
		return r.value, r.ok, nil
	}
}

// popLocked removes and returns the oldest buffered value.
func (q *Queue[T]) popLocked() T {
	var zero T
	value := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return value
}

func (q *Queue[T]) removeProducer(w *producerWaiter[T]) bool {
	for i, p := range q.producers {
		if p == w {
			q.producers = append(q.producers[:i], q.producers[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue[T]) removeConsumer(w *consumerWaiter[T]) bool {
	for i, c := range q.consumers {
		if c == w {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			return true
		}
	}
	return false
}

// Close marks the queue closed and releases every waiter: blocked consumers
// observe end-of-stream, blocked producers observe a failed push. Buffered
// values remain available to Pop until drained. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	consumers := q.consumers
	producers := q.producers
	q.consumers = nil
	q.producers = nil
	q.mu.Unlock()

	for _, c := range consumers {
		c.ch <- popResult[T]{}
	}
	for _, p := range producers {
		p.ch <- wakeClosed
	}
}

// Events returns a lazy sequence view over successive Pop calls. Iteration
// ends at end-of-stream or when sig fires. The sequence is restartable per
// call (a new range picks up wherever the queue is), not rewindable.
func (q *Queue[T]) Events(sig *CancelSignal) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			value, ok, err := q.Pop(sig)
			if err != nil || !ok {
				return
			}
			if !yield(value) {
				return
			}
		}
	}
}

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Len returns the number of buffered values. It is a racy snapshot for
// diagnostics only; never use it for synchronization decisions.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Empty reports whether the buffer is empty. Diagnostics only, as Len.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Closed reports whether Close has been called. Diagnostics only, as Len.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// highWatermark returns the maximum buffered count observed.
func (q *Queue[T]) highWatermark() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}
