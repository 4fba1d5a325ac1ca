package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned when enqueueing after Close
var ErrQueueClosed = errors.New("turn queue closed")

// Task is one unit of per-claim work
type Task func(ctx context.Context)

// TurnQueue runs tasks in FIFO order per claim. Tasks of one claim never
// overlap; tasks of different claims run concurrently. A claim's worker
// goroutine exits as soon as its queue drains.
type TurnQueue struct {
	mu      sync.Mutex
	pending map[string][]Task
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewTurnQueue creates an empty queue
func NewTurnQueue(logger *zap.Logger) *TurnQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &TurnQueue{
		pending: make(map[string][]Task),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Enqueue appends a task to the claim's queue, starting a worker if none
// is running.
func (q *TurnQueue) Enqueue(claimID string, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	tasks, running := q.pending[claimID]
	q.pending[claimID] = append(tasks, task)
	if !running {
		q.wg.Add(1)
		go q.work(claimID)
	}
	return nil
}

// Pending returns the number of queued or running tasks for a claim
func (q *TurnQueue) Pending(claimID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[claimID])
}

// Close cancels running tasks, discards queued ones and waits for every
// worker to exit.
func (q *TurnQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *TurnQueue) work(claimID string) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		tasks := q.pending[claimID]
		if len(tasks) == 0 || q.ctx.Err() != nil {
			delete(q.pending, claimID)
			q.mu.Unlock()
			return
		}
		task := tasks[0]
		q.mu.Unlock()

		q.run(claimID, task)

		q.mu.Lock()
		// the head stays queued while it runs so Pending counts it
		if rest := q.pending[claimID]; len(rest) > 0 {
			q.pending[claimID] = rest[1:]
		}
		q.mu.Unlock()
	}
}

func (q *TurnQueue) run(claimID string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("turn task panicked",
				zap.String("claim_id", claimID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	task(q.ctx)
}
