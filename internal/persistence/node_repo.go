package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/meshmon/internal/domain"
)

// NodeRepo stores the node registry snapshot.
type NodeRepo struct {
	db *sql.DB
}

var _ domain.NodeSnapshotStore = (*NodeRepo)(nil)

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// Save upserts every record of the snapshot in one transaction.
func (r *NodeRepo) Save(ctx context.Context, records map[string]domain.NodeRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin node snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes(node_id, display_name, first_seen_at, last_seen_at, last_snr, last_rssi, hops_away, last_heard_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			display_name = excluded.display_name,
			first_seen_at = MIN(nodes.first_seen_at, excluded.first_seen_at),
			last_seen_at = excluded.last_seen_at,
			last_snr = COALESCE(excluded.last_snr, nodes.last_snr),
			last_rssi = COALESCE(excluded.last_rssi, nodes.last_rssi),
			hops_away = COALESCE(excluded.hops_away, nodes.hops_away),
			last_heard_at = MAX(nodes.last_heard_at, excluded.last_heard_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare node upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for key, rec := range records {
		id := domain.NormalizeNodeID(rec.ID)
		if id == "" {
			id = domain.NormalizeNodeID(key)
		}
		if id == "" {
			continue
		}
		var snr, rssi, hops any
		if rec.LastSNR != nil {
			snr = *rec.LastSNR
		}
		if rec.LastRSSI != nil {
			rssi = int64(*rec.LastRSSI)
		}
		if rec.HopsAway != nil {
			hops = int64(*rec.HopsAway)
		}
		if _, err := stmt.ExecContext(ctx, id, domain.NodeDisplayName(rec), toUnixMillis(rec.FirstSeen), toUnixMillis(rec.LastSeen), snr, rssi, hops, toUnixMillis(rec.LastHeard)); err != nil {
			return fmt.Errorf("upsert node %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit node snapshot: %w", err)
	}

	return nil
}

func (r *NodeRepo) Load(ctx context.Context) (map[string]domain.NodeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, display_name, first_seen_at, last_seen_at, last_snr, last_rssi, hops_away, last_heard_at
		FROM nodes
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]domain.NodeRecord)
	for rows.Next() {
		var (
			rec      domain.NodeRecord
			firstMs  int64
			lastMs   int64
			heardMs  int64
			snr      sql.NullFloat64
			rssi     sql.NullInt64
			hopsAway sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.DisplayName, &firstMs, &lastMs, &snr, &rssi, &hopsAway, &heardMs); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		rec.FirstSeen = fromUnixMillis(firstMs)
		rec.LastSeen = fromUnixMillis(lastMs)
		rec.LastHeard = fromUnixMillis(heardMs)
		if snr.Valid {
			v := snr.Float64
			rec.LastSNR = &v
		}
		if rssi.Valid {
			v := int(rssi.Int64)
			rec.LastRSSI = &v
		}
		if hopsAway.Valid {
			v := int(hopsAway.Int64)
			rec.HopsAway = &v
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return out, nil
}
