package subgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"github.com/brojonat/sfviz/service/graph"
	"github.com/brojonat/sfviz/service/metrics"
)

// ErrRateLimited is returned by the transport when the subgraph answers 429.
var ErrRateLimited = errors.New("subgraph rate limited")

// GraphQLClient is the subset of *graphql.Client we use.
// This allows us to mock the GraphQL layer in tests without hitting the subgraph.
type GraphQLClient interface {
	Run(ctx context.Context, req *graphql.Request, resp interface{}) error
}

const (
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
)

// Client queries one network's subgraph.
type Client struct {
	network Network
	gql     GraphQLClient
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxAttempts int
	backoff     time.Duration // base for exponential backoff; doubled for 429s
}

// NewClient creates a subgraph client for network.
// If metrics is nil, no metrics will be recorded.
func NewClient(network Network, gql GraphQLClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		network:     network,
		gql:         gql,
		logger:      logger,
		metrics:     m,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// NewGraphQLClient builds a machinebox client for endpoint whose transport
// turns 429 responses into ErrRateLimited.
func NewGraphQLClient(endpoint string, timeout time.Duration) *graphql.Client {
	hc := &http.Client{
		Timeout:   timeout,
		Transport: rateLimitTransport{next: http.DefaultTransport},
	}
	return graphql.NewClient(endpoint, graphql.WithHTTPClient(hc))
}

type rateLimitTransport struct {
	next http.RoundTripper
}

func (t rateLimitTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	res, err := t.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusTooManyRequests {
		res.Body.Close()
		return nil, ErrRateLimited
	}
	return res, nil
}

// Network returns the network this client queries.
func (c *Client) Network() Network {
	return c.network
}

// FetchRelevantEntities returns the accounts, streams, pool memberships and
// pool distributions touching accounts within tokens, as of block (nil for
// the latest indexed block).
func (c *Client) FetchRelevantEntities(ctx context.Context, tokens, accounts []string, block *uint64) (*graph.QueryResult, error) {
	req := graphql.NewRequest(allRelevantEntitiesQuery)
	req.Var("accounts", accounts)
	req.Var("tokens", tokens)
	if block != nil {
		req.Var("block", blockHeight{Number: *block})
	} else {
		req.Var("block", nil)
	}

	chain := strconv.FormatInt(c.network.ChainID, 10)
	start := time.Now()

	var resp relevantEntitiesResponse
	err := c.runWithRetry(ctx, req, &resp)

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordSubgraphRequest(chain, status, time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to query subgraph",
			"network", c.network.Name,
			"error", err,
		)
		return nil, fmt.Errorf("failed to query %s subgraph: %w", c.network.Name, err)
	}

	q := resp.toQueryResult()
	c.logger.DebugContext(ctx, "fetched relevant entities",
		"network", c.network.Name,
		"accounts", len(q.Accounts),
		"streams", len(q.Streams),
		"pool_members", len(q.PoolMembers),
		"pool_distributors", len(q.PoolDistributors),
	)
	return q, nil
}

func (c *Client) runWithRetry(ctx context.Context, req *graphql.Request, resp *relevantEntitiesResponse) error {
	chain := strconv.FormatInt(c.network.ChainID, 10)

	var err error
	for attempt := range c.maxAttempts {
		*resp = relevantEntitiesResponse{}
		err = c.gql.Run(ctx, req, resp)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		// Rate limiting gets the longer backoff
		backoff := c.backoff << uint(attempt)
		reason := "error"
		if isRateLimited(err) {
			backoff = c.backoff << uint(attempt+1)
			reason = "rate_limit"
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(chain)
			}
		}
		if c.metrics != nil {
			c.metrics.RecordSubgraphRetry(chain, reason)
		}
		c.logger.WarnContext(ctx, "subgraph query failed, retrying",
			"network", c.network.Name,
			"attempt", attempt+1,
			"reason", reason,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)

		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return err
}

func isRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited) || strings.Contains(err.Error(), "429")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
