package agents

import (
	"context"
	"sync"
	"time"
)

// ReviewQueue is the FIFO connecting researcher completions to supervisor
// reviews. One lock protects enqueue, batch extraction and clear; events
// are drained in enqueue order.
type ReviewQueue struct {
	mu     sync.Mutex
	events []QueueEvent
	wake   chan struct{}
}

func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{wake: make(chan struct{}, 1)}
}

// Enqueue appends one event.
func (q *ReviewQueue) Enqueue(event QueueEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued events.
func (q *ReviewQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Clear drops all queued events.
func (q *ReviewQueue) Clear() {
	q.mu.Lock()
	q.events = nil
	q.mu.Unlock()
}

// DrainBatch atomically removes and returns up to maxBatch events in FIFO
// order.
func (q *ReviewQueue) DrainBatch(maxBatch int) []QueueEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	n := len(q.events)
	if maxBatch > 0 && n > maxBatch {
		n = maxBatch
	}
	batch := make([]QueueEvent, n)
	copy(batch, q.events[:n])
	q.events = q.events[n:]
	return batch
}

// ProcessBatch drains up to maxBatch events and invokes reviewFn once with
// the batch. With an empty queue it returns (nil, nil) without calling
// reviewFn.
func (q *ReviewQueue) ProcessBatch(ctx context.Context, maxBatch int, reviewFn func(ctx context.Context, batch []QueueEvent) (*Decision, error)) (*Decision, error) {
	batch := q.DrainBatch(maxBatch)
	if len(batch) == 0 {
		return nil, nil
	}
	return reviewFn(ctx, batch)
}

// WaitForBatch blocks until at least minSize events are queued or the
// timeout elapses. It is advisory coalescing only; the queue may hold
// fewer events when it returns.
func (q *ReviewQueue) WaitForBatch(ctx context.Context, minSize int, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if q.Len() >= minSize {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-q.wake:
		}
	}
}
