package gojob

import (
	"context"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-tiktokshop/core"
)

var errQueueClosed = core.NewError(core.ErrorInternal, "gojob: memory queue is closed", nil)

// MemoryQueue is an in-process webhook queue for single-node deployments
// and tests. Requeued jobs come back after their nack delay; dead-lettered
// jobs are kept for inspection.
type MemoryQueue struct {
	ready chan memoryItem

	mu         sync.Mutex
	deadLetter []*job.ExecutionMessage
	closed     bool
}

type memoryItem struct {
	msg     *job.ExecutionMessage
	attempt int
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ready: make(chan memoryItem, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	return q.push(ctx, memoryItem{msg: msg, attempt: 1})
}

func (q *MemoryQueue) push(ctx context.Context, item memoryItem) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errQueueClosed
	}
	select {
	case q.ready <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case item := <-q.ready:
		return &memoryDelivery{queue: q, item: item}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int {
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetter...)
}

// Close rejects further enqueues. Pending jobs stay readable.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

type memoryDelivery struct {
	queue *MemoryQueue
	item  memoryItem
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.item.msg
}

func (d *memoryDelivery) Attempt() int {
	return d.item.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if opts.DeadLetter || !opts.Requeue {
		d.queue.mu.Lock()
		d.queue.deadLetter = append(d.queue.deadLetter, d.item.msg)
		d.queue.mu.Unlock()
		return nil
	}
	next := memoryItem{msg: d.item.msg, attempt: d.item.attempt + 1}
	if opts.Delay <= 0 {
		return d.queue.push(context.Background(), next)
	}
	time.AfterFunc(opts.Delay, func() {
		_ = d.queue.push(context.Background(), next)
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
