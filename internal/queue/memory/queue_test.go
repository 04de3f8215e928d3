package memory

import (
	"context"
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(8)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}

	n, err := q.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Len() = %d, %v; want 3", n, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.DequeueBlocking(ctx, time.Second)
		if err != nil || !ok {
			t.Fatalf("DequeueBlocking() = %v, %v; want entry", ok, err)
		}
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestDequeueTimeoutReturnsNotOK(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	start := time.Now()
	id, ok, err := q.DequeueBlocking(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueBlocking() error = %v", err)
	}
	if ok || id != "" {
		t.Fatalf("expected empty pop, got %q", id)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("expected pop to block for the timeout")
	}
}

func TestDequeueUnblocksOnContextCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := q.DequeueBlocking(ctx, 0)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock on cancel")
	}
}

func TestEnqueueDeliversToBlockedConsumer(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()

	got := make(chan string, 1)
	go func() {
		id, ok, err := q.DequeueBlocking(ctx, 5*time.Second)
		if err == nil && ok {
			got <- id
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(ctx, "late"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case id := <-got:
		if id != "late" {
			t.Fatalf("expected %q, got %q", "late", id)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked consumer never received the entry")
	}
}
