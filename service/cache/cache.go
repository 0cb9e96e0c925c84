// Package cache puts an expiring, de-duplicating cache in front of the
// subgraph.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/brojonat/sfviz/service/graph"
	"github.com/brojonat/sfviz/service/metrics"
	"github.com/brojonat/sfviz/service/subgraph"
)

const (
	DefaultLatestTTL = 30 * time.Second
	DefaultPinnedTTL = time.Hour
)

// ErrLoadAborted is returned to callers sharing a load that ended without a
// result.
var ErrLoadAborted = errors.New("query cache: shared load aborted")

// Config sets the cache lifetimes. Results pinned to a block never change, so
// they can be kept much longer than results for the latest block.
type Config struct {
	LatestTTL time.Duration
	PinnedTTL time.Duration
}

// QueryCache is a subgraph.Fetcher that serves repeated selections from
// memory. Concurrent misses on the same key share a single load, and failed
// loads are not cached.
//
// Cached results are shared between callers and must not be modified.
type QueryCache struct {
	next    subgraph.Fetcher
	cfg     Config
	store   *gocache.Cache
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	inProgress map[string]*loaderStatus
}

var _ subgraph.Fetcher = (*QueryCache)(nil)

// New wraps next. Zero durations in cfg fall back to the defaults.
// If metrics is nil, no metrics will be recorded.
func New(next subgraph.Fetcher, cfg Config, m *metrics.Metrics, logger *slog.Logger) *QueryCache {
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = DefaultLatestTTL
	}
	if cfg.PinnedTTL <= 0 {
		cfg.PinnedTTL = DefaultPinnedTTL
	}
	return &QueryCache{
		next:       next,
		cfg:        cfg,
		store:      gocache.New(cfg.LatestTTL, 2*cfg.LatestTTL),
		logger:     logger,
		metrics:    m,
		inProgress: make(map[string]*loaderStatus),
	}
}

// Key identifies a selection independently of the order of its addresses.
func Key(chainID int64, tokens, accounts []string, block *uint64) string {
	b := "latest"
	if block != nil {
		b = strconv.FormatUint(*block, 10)
	}
	return fmt.Sprintf("%d|%s|%s|%s", chainID, joinSorted(tokens), joinSorted(accounts), b)
}

func joinSorted(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// FetchRelevantEntities implements subgraph.Fetcher.
func (c *QueryCache) FetchRelevantEntities(ctx context.Context, chainID int64, tokens, accounts []string, block *uint64) (*graph.QueryResult, error) {
	key := Key(chainID, tokens, accounts, block)

	c.mu.Lock()
	if v, ok := c.store.Get(key); ok {
		c.mu.Unlock()
		c.record("hit")
		return v.(*graph.QueryResult), nil
	}

	// someone else is already loading this key
	if status, ok := c.inProgress[key]; ok {
		c.mu.Unlock()
		c.record("shared")
		return status.wait(ctx)
	}

	status := &loaderStatus{done: make(chan struct{}), err: ErrLoadAborted}
	c.inProgress[key] = status
	c.mu.Unlock()
	c.record("miss")

	return c.load(ctx, key, status, chainID, tokens, accounts, block)
}

// load runs the shared fetch for key. Waiters are released even if next
// panics; they then see ErrLoadAborted and the panic reaches this caller.
func (c *QueryCache) load(ctx context.Context, key string, status *loaderStatus, chainID int64, tokens, accounts []string, block *uint64) (*graph.QueryResult, error) {
	defer func() {
		c.mu.Lock()
		delete(c.inProgress, key)
		c.mu.Unlock()
		close(status.done)

		if c.metrics != nil {
			c.metrics.SetCacheItems(c.store.ItemCount())
		}
	}()

	// the load outlives a single caller's cancellation since others may be waiting on it
	result, err := c.next.FetchRelevantEntities(context.WithoutCancel(ctx), chainID, tokens, accounts, block)
	if err == nil {
		ttl := c.cfg.LatestTTL
		if block != nil {
			ttl = c.cfg.PinnedTTL
		}
		c.store.Set(key, result, ttl)
	} else {
		c.logger.WarnContext(ctx, "query cache load failed", "key", key, "error", err)
	}

	status.value, status.err = result, err
	return result, err
}

// Flush drops every cached entry.
func (c *QueryCache) Flush() {
	c.store.Flush()
	if c.metrics != nil {
		c.metrics.SetCacheItems(0)
	}
}

// Len is the number of cached entries, expired ones included until cleanup.
func (c *QueryCache) Len() int {
	return c.store.ItemCount()
}

func (c *QueryCache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(result)
	}
}

type loaderStatus struct {
	done  chan struct{}
	value *graph.QueryResult
	err   error
}

// wait blocks until the load finishes or ctx is done.
func (s *loaderStatus) wait(ctx context.Context) (*graph.QueryResult, error) {
	select {
	case <-s.done:
		return s.value, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
