package subgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/sfviz/service/graph"
	"github.com/brojonat/sfviz/service/metrics"
)

// Fetcher loads the raw relation records for a selection on a chain.
type Fetcher interface {
	FetchRelevantEntities(ctx context.Context, chainID int64, tokens, accounts []string, block *uint64) (*graph.QueryResult, error)
}

// RegistryConfig controls how per-network clients are built.
type RegistryConfig struct {
	URLTemplate string
	Timeout     time.Duration
}

// Registry hands out one lazily constructed Client per supported chain.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	clients map[int64]*Client

	newClient func(Network) *Client
}

// NewRegistry creates a registry whose clients query the endpoints rendered
// from cfg.URLTemplate.
func NewRegistry(cfg RegistryConfig, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return NewRegistryWithFactory(func(n Network) *Client {
		endpoint := n.Endpoint(cfg.URLTemplate)
		logger.Debug("creating subgraph client", "network", n.Name, "endpoint", endpoint)
		return NewClient(n, NewGraphQLClient(endpoint, cfg.Timeout), m, logger)
	})
}

// NewRegistryWithFactory creates a registry that builds clients with
// newClient. newClient is called at most once per chain.
func NewRegistryWithFactory(newClient func(Network) *Client) *Registry {
	return &Registry{
		clients:   make(map[int64]*Client),
		newClient: newClient,
	}
}

// Client returns the client for chainID, creating it on first use.
func (r *Registry) Client(chainID int64) (*Client, error) {
	network, ok := NetworkByChainID(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[chainID]; ok {
		return c, nil
	}
	c := r.newClient(network)
	r.clients[chainID] = c
	return c, nil
}

// FetchRelevantEntities implements Fetcher.
func (r *Registry) FetchRelevantEntities(ctx context.Context, chainID int64, tokens, accounts []string, block *uint64) (*graph.QueryResult, error) {
	c, err := r.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c.FetchRelevantEntities(ctx, tokens, accounts, block)
}
