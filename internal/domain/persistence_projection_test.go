package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type inlineQueue struct {
	mu    sync.Mutex
	names []string
}

func (q *inlineQueue) Enqueue(name string, fn func(context.Context) error) {
	q.mu.Lock()
	q.names = append(q.names, name)
	q.mu.Unlock()
	_ = fn(context.Background())
}

type memorySnapshotStore struct {
	mu    sync.Mutex
	saved []map[string]NodeRecord
}

func (s *memorySnapshotStore) Load(context.Context) (map[string]NodeRecord, error) {
	return map[string]NodeRecord{}, nil
}

func (s *memorySnapshotStore) Save(_ context.Context, nodes map[string]NodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, nodes)

	return nil
}

func (s *memorySnapshotStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.saved)
}

func TestSnapshotProjectionSavesOnlyWhenDirty(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewNodeRegistry(clock)
	store := &memorySnapshotStore{}
	queue := &inlineQueue{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg.Register("!00000001", "One")
	StartSnapshotProjection(ctx, reg, queue, store, clock, time.Minute)

	waitFor(t, func() bool {
		clock.Advance(time.Minute)

		return store.count() == 1
	})

	clock.Advance(time.Minute)
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if got := store.count(); got != 1 {
		t.Fatalf("expected no save without changes, got %d saves", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
