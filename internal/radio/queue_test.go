package radio

import (
	"context"
	"testing"
	"time"
)

func TestQueue_RunsClosuresInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(4)
	go q.Run(ctx)

	got := make(chan int, 10)
	for i := 0; i < 10; i++ {
		i := i
		if !q.Post(func() { got <- i }) {
			t.Fatalf("post %d rejected", i)
		}
	}
	for want := 0; want < 10; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("expected %d, got %d", want, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for closure %d", want)
		}
	}
}

func TestQueue_PostAfterCloseFails(t *testing.T) {
	q := NewQueue(1)
	q.Close()

	if q.Post(func() {}) {
		t.Fatalf("expected post to fail after close")
	}
	select {
	case <-q.Done():
	default:
		t.Fatalf("expected done channel to be closed")
	}
}

func TestQueue_BlockedPostReleasedByClose(t *testing.T) {
	q := NewQueue(1)
	if !q.Post(func() {}) {
		t.Fatalf("first post rejected")
	}

	result := make(chan bool, 1)
	go func() { result <- q.Post(func() {}) }()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected blocked post to fail")
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked post was not released")
	}
}

func TestQueue_RunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue(1)
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
	if q.Post(func() {}) {
		t.Fatalf("expected post to fail after run stopped")
	}
}
