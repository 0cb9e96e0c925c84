// Package client is a Go client for the sfviz HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/sfviz/service/graph"
)

// DiagramInput selects what a diagram is built for. Zero Chain uses the
// server's default chain; nil Block means the latest indexed block.
type DiagramInput struct {
	Chain    int64
	Tokens   []string
	Accounts []string
	Block    *uint64

	// Layout is "layered" (server default) or "none".
	Layout string
	// Direction is "TB" (server default) or "LR".
	Direction string
}

// Diagram is a reconciled, optionally laid out, flow graph.
type Diagram struct {
	Chain       int64            `json:"chain"`
	Nodes       []graph.Node     `json:"nodes"`
	Edges       []graph.Edge     `json:"edges"`
	LatestBlock *graph.Block     `json:"latestBlock"`
	BlockRange  graph.BlockRange `json:"blockRange"`
}

// Network is a chain the server can query.
type Network struct {
	ChainID int64  `json:"chainId"`
	Name    string `json:"name"`
	Testnet bool   `json:"testnet"`
}

// Watch is a selection the server snapshots on a schedule.
type Watch struct {
	ID             string
	Chain          int64
	Tokens         []string
	Accounts       []string
	Interval       time.Duration
	Status         string // active, paused
	LastSnapshotAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WatchRequest creates or updates a watch. Zero Interval uses the server's
// default.
type WatchRequest struct {
	Chain    int64
	Tokens   []string
	Accounts []string
	Interval time.Duration
}

// Snapshot is a stored diagram of a watch at one block. Graph is only set
// when requested.
type Snapshot struct {
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

// SnapshotQuery pages through a watch's snapshots. Zero Limit uses the
// server's default page size.
type SnapshotQuery struct {
	Limit        int
	Offset       int
	IncludeGraph bool
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the sfviz service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Graph fetches the flow diagram for a selection.
func (c *Client) Graph(ctx context.Context, in DiagramInput) (*Diagram, error) {
	q := url.Values{}
	if in.Chain != 0 {
		q.Set("chain", strconv.FormatInt(in.Chain, 10))
	}
	if len(in.Tokens) > 0 {
		q.Set("tokens", strings.Join(in.Tokens, ","))
	}
	if len(in.Accounts) > 0 {
		q.Set("accounts", strings.Join(in.Accounts, ","))
	}
	if in.Block != nil {
		q.Set("block", strconv.FormatUint(*in.Block, 10))
	}
	if in.Layout != "" {
		q.Set("layout", in.Layout)
	}
	if in.Direction != "" {
		q.Set("direction", in.Direction)
	}

	var d Diagram
	if err := c.do(ctx, http.MethodGet, "/api/v1/graph?"+q.Encode(), nil, &d, http.StatusOK); err != nil {
		return nil, err
	}
	c.logger.Debug("diagram fetched", "chain", d.Chain, "nodes", len(d.Nodes), "edges", len(d.Edges))
	return &d, nil
}

// Networks lists the chains the server supports.
func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	var resp struct {
		Networks []Network `json:"networks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/networks", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Networks, nil
}

// CreateWatch creates a watch, or updates the interval of the existing watch
// for the same selection. created reports which happened.
func (c *Client) CreateWatch(ctx context.Context, req WatchRequest) (w *Watch, created bool, err error) {
	body := map[string]interface{}{
		"chain":    req.Chain,
		"tokens":   req.Tokens,
		"accounts": req.Accounts,
	}
	if req.Interval > 0 {
		body["interval"] = req.Interval.String()
	}

	var resp watchResponse
	status, err := c.doStatus(ctx, http.MethodPost, "/api/v1/watches", body, &resp, http.StatusCreated, http.StatusOK)
	if err != nil {
		return nil, false, err
	}
	w, err = responseToWatch(&resp)
	if err != nil {
		return nil, false, err
	}
	c.logger.Debug("watch saved", "id", w.ID, "interval", w.Interval, "created", status == http.StatusCreated)
	return w, status == http.StatusCreated, nil
}

// ListWatches lists every watch.
func (c *Client) ListWatches(ctx context.Context) ([]*Watch, error) {
	var resp struct {
		Watches []watchResponse `json:"watches"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/watches", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}

	watches := make([]*Watch, len(resp.Watches))
	for i := range resp.Watches {
		w, err := responseToWatch(&resp.Watches[i])
		if err != nil {
			return nil, fmt.Errorf("failed to parse watch %s: %w", resp.Watches[i].ID, err)
		}
		watches[i] = w
	}
	return watches, nil
}

// GetWatch fetches one watch.
func (c *Client) GetWatch(ctx context.Context, id string) (*Watch, error) {
	var resp watchResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/watches/"+url.PathEscape(id), nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return responseToWatch(&resp)
}

// DeleteWatch removes a watch, its schedule and its snapshots.
func (c *Client) DeleteWatch(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/watches/"+url.PathEscape(id), nil, nil, http.StatusNoContent); err != nil {
		return err
	}
	c.logger.Debug("watch deleted", "id", id)
	return nil
}

// Snapshots lists a watch's snapshots, newest block first.
func (c *Client) Snapshots(ctx context.Context, id string, query SnapshotQuery) ([]*Snapshot, error) {
	q := url.Values{}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		q.Set("offset", strconv.Itoa(query.Offset))
	}
	if query.IncludeGraph {
		q.Set("include_graph", "true")
	}

	path := "/api/v1/watches/" + url.PathEscape(id) + "/snapshots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Snapshots []*Snapshot `json:"snapshots"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

// LatestSnapshot fetches a watch's newest snapshot with its graph.
func (c *Client) LatestSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/watches/"+url.PathEscape(id)+"/snapshots/latest", nil, &snap, http.StatusOK); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health returns nil when the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, want ...int) error {
	_, err := c.doStatus(ctx, method, path, body, out, want...)
	return err
}

// doStatus sends a request and decodes a JSON response into out (if non-nil)
// when the status is one of want.
func (c *Client) doStatus(ctx context.Context, method, path string, body, out interface{}, want ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range want {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return resp.StatusCode, parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// watchResponse is the API format for a watch; interval is a duration
// string (e.g. "15m0s").
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

func responseToWatch(resp *watchResponse) (*Watch, error) {
	interval, err := time.ParseDuration(resp.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", resp.Interval, err)
	}
	return &Watch{
		ID:             resp.ID,
		Chain:          resp.Chain,
		Tokens:         resp.Tokens,
		Accounts:       resp.Accounts,
		Interval:       interval,
		Status:         resp.Status,
		LastSnapshotAt: resp.LastSnapshotAt,
		CreatedAt:      resp.CreatedAt,
		UpdatedAt:      resp.UpdatedAt,
	}, nil
}

// parseErrorResponse turns an error body into an *APIError.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
