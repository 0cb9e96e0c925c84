package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken   = "0x1eff3dd78f4a14abfa9fa66579bd3ce9e1b30529"
	testAccount = "0x9421fe8eccafad113bb0a1c4c5e5ea2ec5a2b1b9"
	testWatchID = "5b0b6a6e-3c5e-5d6c-9a31-0f4c1d2e3f40"
)

func watchJSON(interval string) map[string]interface{} {
	return map[string]interface{}{
		"id":         testWatchID,
		"chain":      10,
		"tokens":     []string{testToken},
		"accounts":   []string{testAccount},
		"interval":   interval,
		"status":     "active",
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-01-01T00:00:00Z",
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/graph", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "137", q.Get("chain"))
		assert.Equal(t, testToken, q.Get("tokens"))
		assert.Equal(t, testAccount+","+testAccount[:41]+"0", q.Get("accounts"))
		assert.Equal(t, "42", q.Get("block"))
		assert.Equal(t, "none", q.Get("layout"))
		assert.Empty(t, q.Get("direction"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"chain": 137,
			"nodes": []map[string]interface{}{
				{"id": testAccount, "type": "custom", "position": map[string]float64{"x": 0, "y": 0}, "isSelected": true},
			},
			"edges": []map[string]interface{}{
				{
					"id": "e1", "source": testAccount, "target": testAccount[:41] + "0",
					"flowRate": "1000", "token": map[string]string{"id": testToken, "symbol": "USDCx"},
					"type": "floating", "animated": true, "style": map[string]int{"strokeWidth": 3},
				},
			},
			"latestBlock": map[string]int64{"number": 42, "timestamp": 1700000000},
			"blockRange":  map[string]interface{}{"min": 1, "max": 40, "averageBlockTime": 2.5},
		})
	}))
	defer server.Close()

	block := uint64(42)
	c := NewClient(server.URL, nil, nil)
	d, err := c.Graph(context.Background(), DiagramInput{
		Chain:    137,
		Tokens:   []string{testToken},
		Accounts: []string{testAccount, testAccount[:41] + "0"},
		Block:    &block,
		Layout:   "none",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(137), d.Chain)
	require.Len(t, d.Nodes, 1)
	assert.True(t, d.Nodes[0].IsSelected)
	require.Len(t, d.Edges, 1)
	assert.Equal(t, "1000", d.Edges[0].FlowRate.String())
	assert.Equal(t, int64(42), d.LatestBlock.Number)
	assert.Equal(t, 2.5, d.BlockRange.AverageBlockTime)
}

func TestGraph_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least 1 tokens required"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Graph(context.Background(), DiagramInput{Accounts: []string{testAccount}})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "at least 1 tokens required", apiErr.Message)
}

func TestNetworks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/networks", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"networks": []Network{{ChainID: 10, Name: "optimism-mainnet"}, {ChainID: 84532, Name: "base-sepolia", Testnet: true}},
			"count":    2,
		})
	}))
	defer server.Close()

	networks, err := NewClient(server.URL, nil, nil).Networks(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 2)
	assert.Equal(t, "optimism-mainnet", networks[0].Name)
	assert.True(t, networks[1].Testnet)
}

func TestCreateWatch(t *testing.T) {
	tests := []struct {
		name            string
		interval        time.Duration
		status          int
		expectInterval  bool
		expectedCreated bool
	}{
		{name: "new watch", interval: 5 * time.Minute, status: http.StatusCreated, expectInterval: true, expectedCreated: true},
		{name: "existing watch", interval: 5 * time.Minute, status: http.StatusOK, expectInterval: true},
		{name: "server default interval", status: http.StatusCreated, expectedCreated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/watches", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, float64(10), body["chain"])
				assert.Equal(t, []interface{}{testToken}, body["tokens"])
				if tt.expectInterval {
					assert.Equal(t, "5m0s", body["interval"])
				} else {
					assert.NotContains(t, body, "interval")
				}

				writeJSON(w, tt.status, watchJSON("5m0s"))
			}))
			defer server.Close()

			c := NewClient(server.URL, nil, nil)
			w, created, err := c.CreateWatch(context.Background(), WatchRequest{
				Chain:    10,
				Tokens:   []string{testToken},
				Accounts: []string{testAccount},
				Interval: tt.interval,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCreated, created)
			assert.Equal(t, testWatchID, w.ID)
			assert.Equal(t, 5*time.Minute, w.Interval)
		})
	}
}

func TestCreateWatch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to schedule watch"})
	}))
	defer server.Close()

	_, _, err := NewClient(server.URL, nil, nil).CreateWatch(context.Background(), WatchRequest{Chain: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule watch")
}

func TestListAndGetWatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/watches":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"watches": []interface{}{watchJSON("15m0s")},
				"count":   1,
			})
		case "/api/v1/watches/" + testWatchID:
			writeJSON(w, http.StatusOK, watchJSON("1h0m0s"))
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "watch not found"})
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)

	watches, err := c.ListWatches(context.Background())
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.Equal(t, 15*time.Minute, watches[0].Interval)
	assert.Equal(t, []string{testAccount}, watches[0].Accounts)

	w, err := c.GetWatch(context.Background(), testWatchID)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, w.Interval)

	_, err = c.GetWatch(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGetWatch_BadInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, watchJSON("fortnightly"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).GetWatch(context.Background(), testWatchID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid interval")
}

func TestDeleteWatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/watches/"+testWatchID, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, nil, nil).DeleteWatch(context.Background(), testWatchID))
}

func TestSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/watches/"+testWatchID+"/snapshots/latest" {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"id": 9, "watch_id": testWatchID, "block_number": 500,
				"graph": map[string]interface{}{"nodes": []interface{}{}, "edges": []interface{}{}},
			})
			return
		}

		assert.Equal(t, "/api/v1/watches/"+testWatchID+"/snapshots", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("limit"))
		assert.Equal(t, "4", q.Get("offset"))
		assert.Equal(t, "true", q.Get("include_graph"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"snapshots": []map[string]interface{}{
				{"id": 7, "watch_id": testWatchID, "block_number": 400, "node_count": 3, "edge_count": 2, "total_flow_rate": "10"},
				{"id": 6, "watch_id": testWatchID, "block_number": 300, "node_count": 3, "edge_count": 2, "total_flow_rate": "10"},
			},
			"count": 2,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)

	snaps, err := c.Snapshots(context.Background(), testWatchID, SnapshotQuery{Limit: 2, Offset: 4, IncludeGraph: true})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(400), snaps[0].BlockNumber)
	assert.Equal(t, "10", snaps[1].TotalFlowRate)

	latest, err := c.LatestSnapshot(context.Background(), testWatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), latest.BlockNumber)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(latest.Graph))
}

func TestHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("down"))
			return
		}
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", nil, nil)
	assert.NoError(t, c.Health(context.Background()))

	healthy = false
	err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "down", apiErr.Message)
}
