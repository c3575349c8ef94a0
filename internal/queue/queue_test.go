package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: TypeSync, Body: []byte("1")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != TypeSync || string(msg.Body) != "1" {
			t.Errorf("got %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("no message delivered")
	}
}

func TestInMemoryFullBufferDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := NewInMemory(1)
	if err := q.Publish(ctx, Message{Type: TypeSync}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// The scan path must never stall on a slow sync worker.
	done := make(chan error, 1)
	go func() { done <- q.Publish(ctx, Message{Type: TypeSync}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Publish on full buffer: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on full buffer")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	msg := Message{Type: TypeSync, Body: []byte("42|extra")}
	got, err := deserialize(serialize(msg))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}
