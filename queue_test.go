package daemonizer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		q, err := NewQueue[int](capacity)
		require.ErrorIs(t, err, ErrInvalidCapacity)
		assert.Nil(t, q)
	}
}

func TestNewQueue_ValidCapacity(t *testing.T) {
	q, err := NewQueue[int](3)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Cap())
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Empty())
	assert.False(t, q.Closed())
}

func TestQueue_TryPushFIFOOrder(t *testing.T) {
	q, err := NewQueue[int](5)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		assert.True(t, q.TryPush(i))
	}

	for i := 1; i <= 5; i++ {
		v, ok, err := q.Pop(nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestQueue_TryPushFullReturnsFalse(t *testing.T) {
	q, err := NewQueue[int](2)
	require.NoError(t, err)

	assert.True(t, q.TryPush(1))
	assert.True(t, q.TryPush(2))
	assert.False(t, q.TryPush(3))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_NeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	q, err := NewQueue[int](capacity)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		q.TryPush(i)
		assert.LessOrEqual(t, q.Len(), capacity)
	}
}

func TestQueue_TryPushAfterClose(t *testing.T) {
	q, err := NewQueue[int](2)
	require.NoError(t, err)

	q.Close()
	assert.False(t, q.TryPush(1))
}

func TestQueue_PushAfterClose(t *testing.T) {
	q, err := NewQueue[int](2)
	require.NoError(t, err)

	q.Close()
	ok, err := q.Push(nil, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_CloseDrainsThenEndOfStream(t *testing.T) {
	q, err := NewQueue[int](3)
	require.NoError(t, err)

	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	q.Close()

	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok, err = q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v)

	// Drained: every further Pop reports end-of-stream.
	for i := 0; i < 3; i++ {
		_, ok, err = q.Pop(nil)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestQueue_CloseIdempotent(t *testing.T) {
	q, err := NewQueue[int](2)
	require.NoError(t, err)

	require.True(t, q.TryPush(1))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestQueue_DirectHandoffToWaitingConsumer(t *testing.T) {
	q, err := NewQueue[int](2)
	require.NoError(t, err)

	got := make(chan int, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		v, ok, err := q.Pop(nil)
		if err == nil && ok {
			got <- v
		}
	}()

	<-ready
	// Give the consumer a moment to block, so the push takes the handoff
	// path rather than the buffer.
	time.Sleep(20 * time.Millisecond)

	require.True(t, q.TryPush(42))
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
		assert.Equal(t, 0, q.Len(), "handoff must bypass the buffer")
	case <-time.After(time.Second):
		t.Fatal("consumer was not handed the value")
	}
}

func TestQueue_PushBlocksUntilSlotFrees(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))

	pushed := make(chan bool, 1)
	go func() {
		ok, err := q.Push(nil, 2)
		if err == nil {
			pushed <- ok
		}
	}()

	select {
	case <-pushed:
		t.Fatal("push completed against a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case ok := <-pushed:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("push was not woken by the freed slot")
	}

	v, ok, err = q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestQueue_CloseReleasesBlockedProducer(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))

	pushed := make(chan bool, 1)
	go func() {
		ok, err := q.Push(nil, 2)
		if err == nil {
			pushed <- ok
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-pushed:
		assert.False(t, ok, "a producer woken by close must not enqueue")
	case <-time.After(time.Second):
		t.Fatal("close did not release the blocked producer")
	}
}

func TestQueue_CloseReleasesBlockedConsumer(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		_, ok, err := q.Pop(nil)
		if err == nil {
			done <- ok
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok, "consumer must observe end-of-stream")
	case <-time.After(time.Second):
		t.Fatal("close did not release the blocked consumer")
	}
}

func TestQueue_PopCancellation(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)

	ctrl := NewCancelControl()
	errs := make(chan error, 1)
	go func() {
		_, _, err := q.Pop(ctrl.Signal())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ctrl.Cancel("stop")

	select {
	case err := <-errs:
		var cancelErr *CancelError
		require.ErrorAs(t, err, &cancelErr)
		assert.Equal(t, "stop", cancelErr.Reason)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not release the blocked consumer")
	}

	// The abandoned waiter must not swallow a later value.
	require.True(t, q.TryPush(7))
	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestQueue_PushCancellation(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))

	ctrl := NewCancelControl()
	errs := make(chan error, 1)
	go func() {
		_, err := q.Push(ctrl.Signal(), 2)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ctrl.Cancel(nil)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, &CancelError{})
	case <-time.After(time.Second):
		t.Fatal("cancellation did not release the blocked producer")
	}

	// The abandoned producer's value must not appear later.
	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_AlreadyCanceledSignal(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)

	ctrl := NewCancelControl()
	ctrl.Cancel("gone")

	_, _, err = q.Pop(ctrl.Signal())
	assert.ErrorIs(t, err, &CancelError{})

	_, err = q.Push(ctrl.Signal(), 1)
	assert.ErrorIs(t, err, &CancelError{})
	assert.Equal(t, 0, q.Len())
}

func TestQueue_BlockedProducersServedInOrder(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)
	require.True(t, q.TryPush(0))

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, _ = q.Push(nil, i)
		}()
		// Serialize registration so the waiter order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	var got []int
	for i := 0; i < 4; i++ {
		v, ok, err := q.Pop(nil)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, v)
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestQueue_PopServesProducerBeforeBuffer(t *testing.T) {
	q, err := NewQueue[int](2)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))

	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		_, _ = q.Push(nil, 3)
	}()
	time.Sleep(20 * time.Millisecond)

	// Draining must free the producer immediately, not leave it starving
	// behind a full buffer.
	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("producer starved behind a draining buffer")
	}
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Events(t *testing.T) {
	q, err := NewQueue[int](3)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	require.True(t, q.TryPush(3))
	q.Close()

	var got []int
	for v := range q.Events(nil) {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	// Iterating again after drain terminates immediately.
	for range q.Events(nil) {
		t.Fatal("drained queue must not yield")
	}
}

func TestQueue_EventsEarlyBreak(t *testing.T) {
	q, err := NewQueue[int](3)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))
	q.Close()

	for range q.Events(nil) {
		break
	}

	// The sequence is restartable: the remaining value is still there.
	v, ok, err := q.Pop(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestQueue_ConcurrentProducersConsumerDrain(t *testing.T) {
	const (
		producers     = 8
		perProducer   = 50
		totalExpected = producers * perProducer
	)
	q, err := NewQueue[int](4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if ok, _ := q.Push(nil, i); !ok {
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	var count int
	for range q.Events(nil) {
		count++
		assert.LessOrEqual(t, q.Len(), q.Cap())
	}
	assert.Equal(t, totalExpected, count)
	assert.LessOrEqual(t, q.highWatermark(), q.Cap())
}

func TestQueue_PushErrorKind(t *testing.T) {
	q, err := NewQueue[int](1)
	require.NoError(t, err)
	require.True(t, q.TryPush(1))

	ctrl := NewCancelControl()
	ctrl.Cancel(errors.New("boom"))

	_, err = q.Push(ctrl.Signal(), 2)
	var cancelErr *CancelError
	require.ErrorAs(t, err, &cancelErr)
	assert.EqualError(t, errors.Unwrap(cancelErr), "boom")
}
