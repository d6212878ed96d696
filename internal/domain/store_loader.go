package domain

import (
	"context"
	"fmt"
)

// LoadRegistryFromStore seeds reg from the snapshot store and returns the
// number of loaded records. On error the registry is left untouched.
func LoadRegistryFromStore(ctx context.Context, reg *NodeRegistry, store NodeSnapshotStore) (int, error) {
	if store == nil {
		return 0, nil
	}
	records, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load node snapshot: %w", err)
	}
	reg.Load(records)

	return len(records), nil
}
