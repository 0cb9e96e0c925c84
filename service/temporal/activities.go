package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/sfviz/service/db"
	"github.com/brojonat/sfviz/service/graph"
	"github.com/brojonat/sfviz/service/metrics"
	natspkg "github.com/brojonat/sfviz/service/nats"
	"github.com/brojonat/sfviz/service/subgraph"
)

// SnapshotWatchInput contains the input parameters for snapshotting a watch.
type SnapshotWatchInput struct {
	WatchID string `json:"watch_id"`
}

// SnapshotWatchResult contains the result of snapshotting a watch.
type SnapshotWatchResult struct {
	WatchID     string    `json:"watch_id"`
	BlockNumber int64     `json:"block_number"`
	NodeCount   int       `json:"node_count"`
	EdgeCount   int       `json:"edge_count"`
	SnapshotID  int64     `json:"snapshot_id,omitempty"`
	Skipped     bool      `json:"skipped"` // the block was already snapshotted
	RunTime     time.Time `json:"run_time"`
}

// BuildWatchGraphInput contains parameters for the BuildWatchGraph activity.
type BuildWatchGraphInput struct {
	WatchID string `json:"watch_id"`
}

// BuildWatchGraphResult is the reconciled graph of a watch at the latest block.
type BuildWatchGraphResult struct {
	WatchID            string          `json:"watch_id"`
	Chain              int64           `json:"chain"`
	BlockNumber        int64           `json:"block_number"`
	BlockTimestamp     time.Time       `json:"block_timestamp"`
	NodeCount          int             `json:"node_count"`
	EdgeCount          int             `json:"edge_count"`
	TotalFlowRate      string          `json:"total_flow_rate"`
	Graph              json.RawMessage `json:"graph,omitempty"`
	AlreadySnapshotted bool            `json:"already_snapshotted"`
}

// WriteSnapshotInput contains parameters for the WriteSnapshot activity.
type WriteSnapshotInput struct {
	WatchID        string          `json:"watch_id"`
	Chain          int64           `json:"chain"`
	BlockNumber    int64           `json:"block_number"`
	BlockTimestamp time.Time       `json:"block_timestamp"`
	NodeCount      int             `json:"node_count"`
	EdgeCount      int             `json:"edge_count"`
	TotalFlowRate  string          `json:"total_flow_rate"`
	Graph          json.RawMessage `json:"graph"`
}

// WriteSnapshotResult contains the result of writing a snapshot.
type WriteSnapshotResult struct {
	SnapshotID int64 `json:"snapshot_id"`
	Duplicate  bool  `json:"duplicate"` // another run stored this block first
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	GetWatch(ctx context.Context, id uuid.UUID) (*db.Watch, error)
	SnapshotExists(ctx context.Context, watchID uuid.UUID, block int64) (bool, error)
	CreateSnapshot(ctx context.Context, params db.CreateSnapshotParams) (*db.Snapshot, error)
	UpdateWatchSnapshotTime(ctx context.Context, id uuid.UUID, at time.Time) (*db.Watch, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishSnapshot(ctx context.Context, event *natspkg.SnapshotEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store     StoreInterface
	fetcher   subgraph.Fetcher
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics or publisher is nil, nothing is recorded or published.
func NewActivities(
	store StoreInterface,
	fetcher subgraph.Fetcher,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// BuildWatchGraph fetches the watch's selection at the latest indexed block
// and reconciles it into a graph.
func (a *Activities) BuildWatchGraph(ctx context.Context, input BuildWatchGraphInput) (*BuildWatchGraphResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("BuildWatchGraph", input.WatchID, time.Since(start).Seconds())
		}
	}()

	id, err := uuid.Parse(input.WatchID)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("invalid watch id", "InvalidWatchID", err)
	}

	w, err := a.store.GetWatch(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, temporalsdk.NewNonRetryableApplicationError("watch not found", "WatchNotFound", err)
		}
		return nil, fmt.Errorf("failed to load watch: %w", err)
	}

	q, err := a.fetcher.FetchRelevantEntities(ctx, w.Chain, w.Tokens, w.Accounts, nil)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch watch selection",
			"watch_id", input.WatchID,
			"chain", w.Chain,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch relevant entities: %w", err)
	}
	if q.LatestBlock == nil {
		return nil, fmt.Errorf("data source reported no indexed block")
	}

	buildStart := time.Now()
	g, err := graph.Build(w.Chain, w.Accounts, q)
	if err != nil {
		// the same records will fail the same way on retry
		return nil, temporalsdk.NewNonRetryableApplicationError("unable to build graph", "GraphBuildFailed", err)
	}
	if a.metrics != nil {
		a.metrics.RecordGraphBuild(strconv.FormatInt(w.Chain, 10), len(g.Nodes), len(g.Edges), time.Since(buildStart).Seconds())
	}

	result := &BuildWatchGraphResult{
		WatchID:        input.WatchID,
		Chain:          w.Chain,
		BlockNumber:    q.LatestBlock.Number,
		BlockTimestamp: time.Unix(q.LatestBlock.Timestamp, 0).UTC(),
		NodeCount:      len(g.Nodes),
		EdgeCount:      len(g.Edges),
		TotalFlowRate:  g.TotalFlowRate().String(),
	}

	exists, err := a.store.SnapshotExists(ctx, id, result.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing snapshot: %w", err)
	}
	if exists {
		a.logger.InfoContext(ctx, "block already snapshotted",
			"watch_id", input.WatchID,
			"block", result.BlockNumber,
		)
		result.AlreadySnapshotted = true
		return result, nil
	}

	result.Graph, err = json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}

	a.logger.InfoContext(ctx, "built watch graph",
		"watch_id", input.WatchID,
		"block", result.BlockNumber,
		"nodes", result.NodeCount,
		"edges", result.EdgeCount,
	)
	return result, nil
}

// WriteSnapshot persists a snapshot, records the snapshot time on the watch
// and announces it on NATS. Publishing is best-effort.
func (a *Activities) WriteSnapshot(ctx context.Context, input WriteSnapshotInput) (*WriteSnapshotResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("WriteSnapshot", input.WatchID, time.Since(start).Seconds())
		}
	}()

	id, err := uuid.Parse(input.WatchID)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("invalid watch id", "InvalidWatchID", err)
	}

	snap, err := a.store.CreateSnapshot(ctx, db.CreateSnapshotParams{
		WatchID:        id,
		BlockNumber:    input.BlockNumber,
		BlockTimestamp: input.BlockTimestamp,
		NodeCount:      input.NodeCount,
		EdgeCount:      input.EdgeCount,
		TotalFlowRate:  input.TotalFlowRate,
		Graph:          input.Graph,
	})
	if errors.Is(err, db.ErrDuplicateSnapshot) {
		a.logger.InfoContext(ctx, "snapshot already stored",
			"watch_id", input.WatchID,
			"block", input.BlockNumber,
		)
		if a.metrics != nil {
			a.metrics.RecordSnapshotWritten(input.WatchID, "duplicate")
		}
		return &WriteSnapshotResult{Duplicate: true}, nil
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to write snapshot",
			"watch_id", input.WatchID,
			"block", input.BlockNumber,
			"error", err,
		)
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if a.metrics != nil {
		a.metrics.RecordSnapshotWritten(input.WatchID, "created")
	}

	w, err := a.store.UpdateWatchSnapshotTime(ctx, id, time.Now())
	if err != nil {
		// the snapshot is stored; the timestamp is informational
		a.logger.WarnContext(ctx, "failed to update watch snapshot time",
			"watch_id", input.WatchID,
			"error", err,
		)
	}

	if w == nil {
		w = &db.Watch{ID: id, Chain: input.Chain}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishSnapshot(ctx, natspkg.FromSnapshot(w, snap)); err != nil {
			a.logger.ErrorContext(ctx, "failed to publish snapshot event",
				"watch_id", input.WatchID,
				"block", input.BlockNumber,
				"error", err,
			)
		}
	}

	a.logger.InfoContext(ctx, "wrote snapshot",
		"watch_id", input.WatchID,
		"snapshot_id", snap.ID,
		"block", input.BlockNumber,
	)

	return &WriteSnapshotResult{SnapshotID: snap.ID}, nil
}
