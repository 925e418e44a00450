package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
)

func TestMemoryQueueRunRetriesThenDeadLetters(t *testing.T) {
	jobs := NewMemoryQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	handler := core.WebhookDispatcherFunc(func(context.Context, core.WebhookEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 2 {
			close(done)
		}
		return errors.New("handler down")
	})
	consumer := NewConsumer(jobs, handler,
		WithRetryDelay(time.Millisecond),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true}),
	)

	dispatcher := NewDispatcher(jobs, "q")
	if err := dispatcher.Dispatch(ctx, core.WebhookEvent{NotificationID: "n-mem", RawBody: []byte(`{}`)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	finished := make(chan error, 1)
	go func() { finished <- consumer.Run(runCtx) }()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("timed out waiting for retry")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(jobs.DeadLetters()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	if err := <-finished; err != nil {
		t.Fatalf("run: %v", err)
	}

	dead := jobs.DeadLetters()
	if len(dead) != 1 || dead[0].IdempotencyKey != "tiktokshop:webhook:n-mem" {
		t.Fatalf("expected one dead-lettered job, got %#v", dead)
	}
	if jobs.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", jobs.Len())
	}
}

func TestMemoryQueueClosedRejectsEnqueue(t *testing.T) {
	jobs := NewMemoryQueue(1)
	jobs.Close()
	if err := jobs.Enqueue(context.Background(), ToExecutionMessage(core.WebhookEvent{}, "q")); !core.IsKind(err, core.ErrorInternal) {
		t.Fatalf("expected closed queue error, got %v", err)
	}
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	jobs := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := jobs.Dequeue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
