package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultSnapshotLimit = 50
	maxSnapshotLimit     = 500
)

// Snapshot is a persisted graph of a watch at one block.
type Snapshot struct {
	ID             int64
	WatchID        uuid.UUID
	BlockNumber    int64
	BlockTimestamp time.Time
	NodeCount      int
	EdgeCount      int
	TotalFlowRate  string
	Graph          json.RawMessage // nil unless requested
	CreatedAt      time.Time
}

// CreateSnapshotParams contains the parameters for persisting a snapshot.
type CreateSnapshotParams struct {
	WatchID        uuid.UUID
	BlockNumber    int64
	BlockTimestamp time.Time
	NodeCount      int
	EdgeCount      int
	TotalFlowRate  string
	Graph          json.RawMessage
}

// ListSnapshotsParams contains the parameters for listing snapshots.
type ListSnapshotsParams struct {
	WatchID      uuid.UUID
	Limit        int
	Offset       int
	IncludeGraph bool
}

// CreateSnapshot persists a snapshot. Returns ErrDuplicateSnapshot if the
// watch already has a snapshot at this block.
func (s *Store) CreateSnapshot(ctx context.Context, params CreateSnapshotParams) (snap *Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe("create", "snapshots", start, err) }()

	query := `
		INSERT INTO snapshots (watch_id, block_number, block_timestamp, node_count, edge_count, total_flow_rate, graph)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	var (
		id        int64
		createdAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx, query,
		params.WatchID,
		params.BlockNumber,
		params.BlockTimestamp,
		params.NodeCount,
		params.EdgeCount,
		params.TotalFlowRate,
		[]byte(params.Graph),
	).Scan(&id, &createdAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateSnapshot
		}
		return nil, fmt.Errorf("create snapshot: %w", err)
	}

	return &Snapshot{
		ID:             id,
		WatchID:        params.WatchID,
		BlockNumber:    params.BlockNumber,
		BlockTimestamp: params.BlockTimestamp,
		NodeCount:      params.NodeCount,
		EdgeCount:      params.EdgeCount,
		TotalFlowRate:  params.TotalFlowRate,
		Graph:          params.Graph,
		CreatedAt:      createdAt.Time,
	}, nil
}

// SnapshotExists reports whether the watch already has a snapshot at block.
func (s *Store) SnapshotExists(ctx context.Context, watchID uuid.UUID, block int64) (exists bool, err error) {
	start := time.Now()
	defer func() { s.observe("exists", "snapshots", start, err) }()

	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM snapshots WHERE watch_id = $1 AND block_number = $2)`,
		watchID, block,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("snapshot exists: %w", err)
	}
	return exists, nil
}

// ListSnapshots returns a watch's snapshots, newest block first. The graph
// document is only loaded when IncludeGraph is set.
func (s *Store) ListSnapshots(ctx context.Context, params ListSnapshotsParams) (snaps []*Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe("list", "snapshots", start, err) }()

	limit := params.Limit
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	graphColumn := "NULL::jsonb"
	if params.IncludeGraph {
		graphColumn = "graph"
	}

	query := `
		SELECT id, watch_id, block_number, block_timestamp, node_count, edge_count, total_flow_rate, ` + graphColumn + `, created_at
		FROM snapshots
		WHERE watch_id = $1
		ORDER BY block_number DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, params.WatchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// GetLatestSnapshot returns the highest-block snapshot of a watch, including
// its graph. Returns ErrNotFound if the watch has none.
func (s *Store) GetLatestSnapshot(ctx context.Context, watchID uuid.UUID) (snap *Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe("get_latest", "snapshots", start, err) }()

	row := s.pool.QueryRow(ctx, `
		SELECT id, watch_id, block_number, block_timestamp, node_count, edge_count, total_flow_rate, graph, created_at
		FROM snapshots
		WHERE watch_id = $1
		ORDER BY block_number DESC
		LIMIT 1
	`, watchID)

	snap, err = scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		snap           Snapshot
		blockTimestamp pgtype.Timestamptz
		createdAt      pgtype.Timestamptz
		graph          []byte
	)
	err := row.Scan(
		&snap.ID,
		&snap.WatchID,
		&snap.BlockNumber,
		&blockTimestamp,
		&snap.NodeCount,
		&snap.EdgeCount,
		&snap.TotalFlowRate,
		&graph,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	snap.BlockTimestamp = blockTimestamp.Time
	snap.CreatedAt = createdAt.Time
	if graph != nil {
		snap.Graph = json.RawMessage(graph)
	}
	return &snap, nil
}
