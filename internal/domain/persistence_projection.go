package domain

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// WriteQueue serializes persistence writes from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartSnapshotProjection saves the registry through queue whenever it changed
// since the previous interval tick.
func StartSnapshotProjection(ctx context.Context, reg *NodeRegistry, queue WriteQueue, store NodeSnapshotStore, clock clockwork.Clock, interval time.Duration) {
	if reg == nil || queue == nil || store == nil || interval <= 0 {
		return
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	go func() {
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()

		dirty := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-reg.Changes():
				dirty = true
			case <-ticker.Chan():
				if !dirty {
					continue
				}
				dirty = false
				snapshot := reg.Snapshot()
				queue.Enqueue("save_node_snapshot", func(writeCtx context.Context) error {
					return store.Save(writeCtx, snapshot)
				})
			}
		}
	}()
}
