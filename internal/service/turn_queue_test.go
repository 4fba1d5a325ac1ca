package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTurnQueue_FIFOPerClaim(t *testing.T) {
	q := NewTurnQueue(zap.NewNop())
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var running atomic.Int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, q.Enqueue("c1", func(ctx context.Context) {
			defer wg.Done()
			if running.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
		}))
	}
	wg.Wait()

	assert.False(t, overlapped.Load(), "tasks of one claim must not overlap")
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Eventually(t, func() bool { return q.Pending("c1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestTurnQueue_ClaimsRunConcurrently(t *testing.T) {
	q := NewTurnQueue(zap.NewNop())
	defer q.Close()

	blocked := make(chan struct{})
	done := make(chan struct{})
	require.NoError(t, q.Enqueue("slow", func(ctx context.Context) {
		select {
		case <-blocked:
		case <-ctx.Done():
		}
	}))
	require.NoError(t, q.Enqueue("fast", func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a busy claim held up another claim's task")
	}
	close(blocked)
}

func TestTurnQueue_PanicDoesNotStopTheClaim(t *testing.T) {
	q := NewTurnQueue(zap.NewNop())
	defer q.Close()

	ran := make(chan struct{})
	require.NoError(t, q.Enqueue("c1", func(ctx context.Context) { panic("boom") }))
	require.NoError(t, q.Enqueue("c1", func(ctx context.Context) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after a panic never ran")
	}
}

func TestTurnQueue_Close(t *testing.T) {
	q := NewTurnQueue(zap.NewNop())

	started := make(chan struct{})
	var cancelled atomic.Bool
	var skipped atomic.Bool
	require.NoError(t, q.Enqueue("c1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))
	require.NoError(t, q.Enqueue("c1", func(ctx context.Context) { skipped.Store(true) }))
	<-started

	q.Close()
	assert.True(t, cancelled.Load(), "Close cancels the running task and waits for it")
	assert.False(t, skipped.Load(), "queued tasks are discarded")
	assert.ErrorIs(t, q.Enqueue("c1", func(context.Context) {}), ErrQueueClosed)
}

func TestClaimLocks(t *testing.T) {
	locks := newClaimLocks()
	var counter, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.lock("c1")
			defer release()
			n := counter.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(100 * time.Microsecond)
			counter.Add(-1)
		}()
	}

	release := locks.lock("other")
	otherFree := make(chan struct{})
	go func() {
		r := locks.lock("c2")
		r()
		close(otherFree)
	}()
	<-otherFree
	release()

	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, locks.size(), "idle locks are dropped")
}
