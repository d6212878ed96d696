package domain

import "context"

// NodeSnapshotStore persists the known-node table between runs.
type NodeSnapshotStore interface {
	Load(ctx context.Context) (map[string]NodeRecord, error)
	Save(ctx context.Context, nodes map[string]NodeRecord) error
}
