package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// ClearNodes removes every persisted node record.
func ClearNodes(ctx context.Context, db *sql.DB) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("database is not initialized")
	}

	//goland:noinspection SqlWithoutWhere
	res, err := db.ExecContext(ctx, `DELETE FROM nodes;`)
	if err != nil {
		return 0, fmt.Errorf("clear nodes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared nodes: %w", err)
	}

	return n, nil
}
