package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brojonat/sfviz/service/config"
	"github.com/brojonat/sfviz/service/db"
	"github.com/brojonat/sfviz/service/subgraph"
	"github.com/brojonat/sfviz/service/temporal"
)

const (
	maxWatchInterval = 24 * time.Hour

	defaultSnapshotPageSize = 50
	maxSnapshotPageSize     = 500
)

// WatchStore is the persistence the watch endpoints need. *db.Store
// implements it.
type WatchStore interface {
	UpsertWatch(ctx context.Context, params db.UpsertWatchParams) (*db.Watch, bool, error)
	GetWatch(ctx context.Context, id uuid.UUID) (*db.Watch, error)
	ListWatches(ctx context.Context) ([]*db.Watch, error)
	DeleteWatch(ctx context.Context, id uuid.UUID) error
	ListSnapshots(ctx context.Context, params db.ListSnapshotsParams) ([]*db.Snapshot, error)
	GetLatestSnapshot(ctx context.Context, watchID uuid.UUID) (*db.Snapshot, error)
}

var _ WatchStore = (*db.Store)(nil)

type createWatchRequest struct {
	Chain    int64    `json:"chain" validate:"gt=0"`
	Tokens   []string `json:"tokens" validate:"min=1,max=50,dive,address"`
	Accounts []string `json:"accounts" validate:"min=1,max=200,dive,address"`
	Interval string   `json:"interval,omitempty"`
}

type watchResponse struct {
	ID             string     `json:"id"`
	Chain          int64      `json:"chain"`
	Tokens         []string   `json:"tokens"`
	Accounts       []string   `json:"accounts"`
	Interval       string     `json:"interval"`
	Status         string     `json:"status"`
	LastSnapshotAt *time.Time `json:"last_snapshot_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type snapshotResponse struct {
	ID             int64           `json:"id"`
	WatchID        string          `json:"watch_id"`
	BlockNumber    int64           `json:"block_number"`
	BlockTimestamp time.Time       `json:"block_timestamp"`
	NodeCount      int             `json:"node_count"`
	EdgeCount      int             `json:"edge_count"`
	TotalFlowRate  string          `json:"total_flow_rate"`
	Graph          json.RawMessage `json:"graph,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func watchToResponse(w *db.Watch) watchResponse {
	return watchResponse{
		ID:             w.ID.String(),
		Chain:          w.Chain,
		Tokens:         w.Tokens,
		Accounts:       w.Accounts,
		Interval:       w.Interval.String(),
		Status:         w.Status,
		LastSnapshotAt: w.LastSnapshotAt,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

func snapshotToResponse(s *db.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:             s.ID,
		WatchID:        s.WatchID.String(),
		BlockNumber:    s.BlockNumber,
		BlockTimestamp: s.BlockTimestamp,
		NodeCount:      s.NodeCount,
		EdgeCount:      s.EdgeCount,
		TotalFlowRate:  s.TotalFlowRate,
		Graph:          s.Graph,
		CreatedAt:      s.CreatedAt,
	}
}

// parseWatchInterval applies the default and the allowed range.
func parseWatchInterval(s string, cfg *config.Config) (time.Duration, error) {
	defInterval, minInterval := 15*time.Minute, time.Minute
	if cfg != nil {
		defInterval, minInterval = cfg.DefaultWatchInterval, cfg.MinWatchInterval
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return defInterval, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval format: %w", err)
	}
	if d < minInterval {
		return 0, fmt.Errorf("interval must be at least %v", minInterval)
	}
	if d > maxWatchInterval {
		return 0, fmt.Errorf("interval cannot exceed %v", maxWatchInterval)
	}
	return d, nil
}

// watchIDFromPath parses the {id} path value.
func watchIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid watch id")
	}
	return id, nil
}

// handleCreateWatch returns a handler that creates or updates a watch and
// its snapshot schedule. Re-posting the same selection updates the interval
// and reactivates the watch.
// POST /api/v1/watches
func handleCreateWatch(store WatchStore, scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req createWatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Chain == 0 && cfg != nil {
			req.Chain = cfg.DefaultChainID
		}
		req.Tokens = normalizeAddresses(req.Tokens)
		req.Accounts = normalizeAddresses(req.Accounts)

		if err := validate.Struct(&req); err != nil {
			writeError(w, validationMessage(err), http.StatusBadRequest)
			return
		}
		if _, ok := subgraph.NetworkByChainID(req.Chain); !ok {
			writeError(w, fmt.Sprintf("unsupported chain: %d", req.Chain), http.StatusBadRequest)
			return
		}

		interval, err := parseWatchInterval(req.Interval, cfg)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		watch, created, err := store.UpsertWatch(r.Context(), db.UpsertWatchParams{
			Chain:    req.Chain,
			Tokens:   req.Tokens,
			Accounts: req.Accounts,
			Interval: interval,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to upsert watch", "chain", req.Chain, "error", err)
			writeError(w, "failed to save watch", http.StatusInternalServerError)
			return
		}

		if err := scheduler.UpsertWatchSchedule(r.Context(), watch.ID.String(), interval); err != nil {
			logger.ErrorContext(r.Context(), "failed to upsert watch schedule",
				"watch_id", watch.ID,
				"error", err,
			)
			if created {
				if delErr := store.DeleteWatch(r.Context(), watch.ID); delErr != nil {
					logger.ErrorContext(r.Context(), "failed to rollback watch creation",
						"watch_id", watch.ID,
						"error", delErr,
					)
				}
			}
			writeError(w, "failed to schedule watch", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "watch saved",
			"watch_id", watch.ID,
			"chain", watch.Chain,
			"interval", interval,
			"created", created,
		)

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, watchToResponse(watch), status)
	})
}

// handleListWatches returns a handler that lists all watches.
// GET /api/v1/watches
func handleListWatches(store WatchStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		watches, err := store.ListWatches(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list watches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]watchResponse, len(watches))
		for i := range watches {
			resp[i] = watchToResponse(watches[i])
		}
		writeJSON(w, map[string]interface{}{
			"watches": resp,
			"count":   len(resp),
		}, http.StatusOK)
	})
}

// handleGetWatch returns a handler that fetches one watch.
// GET /api/v1/watches/{id}
func handleGetWatch(store WatchStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := watchIDFromPath(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		watch, err := store.GetWatch(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "watch not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get watch", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, watchToResponse(watch), http.StatusOK)
	})
}

// handleDeleteWatch returns a handler that removes a watch, its schedule and
// its snapshots.
// DELETE /api/v1/watches/{id}
func handleDeleteWatch(store WatchStore, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := watchIDFromPath(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if _, err := store.GetWatch(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get watch", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Delete the schedule first so no run starts for a watch that is gone.
		// A missing schedule must not block removing the watch.
		if err := scheduler.DeleteWatchSchedule(r.Context(), id.String()); err != nil {
			logger.WarnContext(r.Context(), "failed to delete watch schedule",
				"watch_id", id,
				"error", err,
			)
		}

		if err := store.DeleteWatch(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to delete watch", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "watch deleted", "watch_id", id)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleListSnapshots returns a handler that pages through a watch's
// snapshots, newest block first. Graph bodies are only included with
// include_graph=true.
// GET /api/v1/watches/{id}/snapshots?limit=&offset=&include_graph=
func handleListSnapshots(store WatchStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := watchIDFromPath(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()

		limit := defaultSnapshotPageSize
		if s := query.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if n < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if n > maxSnapshotPageSize {
				writeError(w, fmt.Sprintf("limit cannot exceed %d", maxSnapshotPageSize), http.StatusBadRequest)
				return
			}
			limit = n
		}

		offset := 0
		if s := query.Get("offset"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				writeError(w, "invalid offset parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if n < 0 {
				writeError(w, "offset cannot be negative", http.StatusBadRequest)
				return
			}
			offset = n
		}

		includeGraph := false
		if s := query.Get("include_graph"); s != "" {
			includeGraph, err = strconv.ParseBool(s)
			if err != nil {
				writeError(w, "invalid include_graph parameter: must be a boolean", http.StatusBadRequest)
				return
			}
		}

		if _, err := store.GetWatch(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get watch", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		snapshots, err := store.ListSnapshots(r.Context(), db.ListSnapshotsParams{
			WatchID:      id,
			Limit:        limit,
			Offset:       offset,
			IncludeGraph: includeGraph,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list snapshots", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]snapshotResponse, len(snapshots))
		for i := range snapshots {
			resp[i] = snapshotToResponse(snapshots[i])
		}
		writeJSON(w, map[string]interface{}{
			"snapshots": resp,
			"count":     len(resp),
			"limit":     limit,
			"offset":    offset,
		}, http.StatusOK)
	})
}

// handleLatestSnapshot returns a handler for the newest snapshot of a watch,
// graph included.
// GET /api/v1/watches/{id}/snapshots/latest
func handleLatestSnapshot(store WatchStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := watchIDFromPath(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap, err := store.GetLatestSnapshot(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "no snapshot found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get latest snapshot", "watch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, snapshotToResponse(snap), http.StatusOK)
	})
}
