package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan ingest.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	item := ingest.QueueItem{TaskID: "task-1", CompanyID: "acme"}
	if err := q.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case got := <-result:
		if got.TaskID != "task-1" || got.CompanyID != "acme" {
			t.Fatalf("unexpected item %+v", got)
		}
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dequeue")
	}
}

func TestQueueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, ingest.QueueItem{TaskID: "full"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), ingest.QueueItem{TaskID: "a"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected len 1, got %d", q.Len())
	}
	q.Close()
	q.Close()

	if err := q.Enqueue(context.Background(), ingest.QueueItem{TaskID: "b"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	item, err := q.Dequeue(context.Background())
	if err != nil || item.TaskID != "a" {
		t.Fatalf("expected buffered item, got %+v %v", item, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
