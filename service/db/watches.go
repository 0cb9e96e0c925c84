package db

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	WatchStatusActive = "active"
	WatchStatusPaused = "paused"
)

// watchNamespace scopes watch ids so they cannot collide with other SHA-1 UUIDs.
var watchNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/brojonat/sfviz/watches"))

// Watch is a saved selection that is snapshotted on a schedule.
type Watch struct {
	ID             uuid.UUID
	Chain          int64
	Tokens         []string // lower-cased, sorted, unique
	Accounts       []string // lower-cased, sorted, unique
	Interval       time.Duration
	Status         string
	LastSnapshotAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UpsertWatchParams contains the parameters for saving a watch.
type UpsertWatchParams struct {
	Chain    int64
	Tokens   []string
	Accounts []string
	Interval time.Duration
}

// CanonicalAddresses lower-cases, de-duplicates and sorts addresses.
func CanonicalAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// WatchID derives the deterministic id of a selection. Selections that differ
// only in address case or order share an id.
func WatchID(chain int64, tokens, accounts []string) uuid.UUID {
	name := strconv.FormatInt(chain, 10) +
		"|" + strings.Join(CanonicalAddresses(tokens), ",") +
		"|" + strings.Join(CanonicalAddresses(accounts), ",")
	return uuid.NewSHA1(watchNamespace, []byte(name))
}

const watchColumns = `id, chain, tokens, accounts, snapshot_interval, status, last_snapshot_at, created_at, updated_at`

// UpsertWatch saves a watch, reactivating it and updating its interval if it
// already exists. created reports whether a new row was inserted.
func (s *Store) UpsertWatch(ctx context.Context, params UpsertWatchParams) (w *Watch, created bool, err error) {
	start := time.Now()
	defer func() { s.observe("upsert", "watches", start, err) }()

	tokens := CanonicalAddresses(params.Tokens)
	accounts := CanonicalAddresses(params.Accounts)
	id := WatchID(params.Chain, tokens, accounts)

	query := `
		INSERT INTO watches (id, chain, tokens, accounts, snapshot_interval, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			snapshot_interval = EXCLUDED.snapshot_interval,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING ` + watchColumns + `, (xmax = 0) AS inserted
	`

	row := s.pool.QueryRow(ctx, query,
		id,
		params.Chain,
		tokens,
		accounts,
		pgIntervalFromDuration(params.Interval),
		WatchStatusActive,
	)

	var r watchRow
	if err := row.Scan(r.dest(&created)...); err != nil {
		return nil, false, fmt.Errorf("upsert watch: %w", err)
	}
	return r.toDomain(), created, nil
}

// GetWatch retrieves a watch by id. Returns ErrNotFound if it does not exist.
func (s *Store) GetWatch(ctx context.Context, id uuid.UUID) (w *Watch, err error) {
	start := time.Now()
	defer func() { s.observe("get", "watches", start, err) }()

	row := s.pool.QueryRow(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = $1`, id)

	var r watchRow
	if err := row.Scan(r.dest(nil)...); err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get watch: %w", err)
	}
	return r.toDomain(), nil
}

// ListWatches retrieves all watches, oldest first.
func (s *Store) ListWatches(ctx context.Context) (ws []*Watch, err error) {
	start := time.Now()
	defer func() { s.observe("list", "watches", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT `+watchColumns+` FROM watches ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	defer rows.Close()

	return scanWatches(rows)
}

// ListActiveWatches retrieves the watches that should be scheduled.
func (s *Store) ListActiveWatches(ctx context.Context) (ws []*Watch, err error) {
	start := time.Now()
	defer func() { s.observe("list_active", "watches", start, err) }()

	rows, err := s.pool.Query(ctx,
		`SELECT `+watchColumns+` FROM watches WHERE status = $1 ORDER BY created_at ASC, id ASC`,
		WatchStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list active watches: %w", err)
	}
	defer rows.Close()

	return scanWatches(rows)
}

// DeleteWatch removes a watch and its snapshots. Returns ErrNotFound if it
// does not exist.
func (s *Store) DeleteWatch(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", "watches", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM watches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete watch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// WatchExists reports whether a watch with id exists.
func (s *Store) WatchExists(ctx context.Context, id uuid.UUID) (exists bool, err error) {
	start := time.Now()
	defer func() { s.observe("exists", "watches", start, err) }()

	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM watches WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("watch exists: %w", err)
	}
	return exists, nil
}

// UpdateWatchSnapshotTime records when the watch was last snapshotted.
func (s *Store) UpdateWatchSnapshotTime(ctx context.Context, id uuid.UUID, at time.Time) (w *Watch, err error) {
	start := time.Now()
	defer func() { s.observe("update_snapshot_time", "watches", start, err) }()

	row := s.pool.QueryRow(ctx, `
		UPDATE watches SET last_snapshot_at = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+watchColumns,
		id, at,
	)

	var r watchRow
	if err := row.Scan(r.dest(nil)...); err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update watch snapshot time: %w", err)
	}
	return r.toDomain(), nil
}

// UpdateWatchStatus pauses or resumes a watch.
func (s *Store) UpdateWatchStatus(ctx context.Context, id uuid.UUID, status string) (w *Watch, err error) {
	start := time.Now()
	defer func() { s.observe("update_status", "watches", start, err) }()

	row := s.pool.QueryRow(ctx, `
		UPDATE watches SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+watchColumns,
		id, status,
	)

	var r watchRow
	if err := row.Scan(r.dest(nil)...); err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update watch status: %w", err)
	}
	return r.toDomain(), nil
}

type watchRow struct {
	id             uuid.UUID
	chain          int64
	tokens         []string
	accounts       []string
	interval       pgtype.Interval
	status         string
	lastSnapshotAt pgtype.Timestamptz
	createdAt      pgtype.Timestamptz
	updatedAt      pgtype.Timestamptz
}

// dest returns scan targets in watchColumns order, plus inserted when non-nil.
func (r *watchRow) dest(inserted *bool) []any {
	d := []any{
		&r.id, &r.chain, &r.tokens, &r.accounts, &r.interval,
		&r.status, &r.lastSnapshotAt, &r.createdAt, &r.updatedAt,
	}
	if inserted != nil {
		d = append(d, inserted)
	}
	return d
}

func (r *watchRow) toDomain() *Watch {
	return &Watch{
		ID:             r.id,
		Chain:          r.chain,
		Tokens:         r.tokens,
		Accounts:       r.accounts,
		Interval:       durationFromPgInterval(r.interval),
		Status:         r.status,
		LastSnapshotAt: timePtrFromPgTimestamptz(r.lastSnapshotAt),
		CreatedAt:      r.createdAt.Time,
		UpdatedAt:      r.updatedAt.Time,
	}
}

func scanWatches(rows pgx.Rows) ([]*Watch, error) {
	var out []*Watch
	for rows.Next() {
		var r watchRow
		if err := rows.Scan(r.dest(nil)...); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		out = append(out, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watches: %w", err)
	}
	return out, nil
}
