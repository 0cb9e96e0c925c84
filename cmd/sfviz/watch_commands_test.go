package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWatchID = "6f1c2f9e-5a3b-5c1d-9e8f-0a1b2c3d4e5f"

func watchJSON(status string) map[string]interface{} {
	return map[string]interface{}{
		"id":         testWatchID,
		"chain":      10,
		"tokens":     []string{testToken},
		"accounts":   []string{testSender},
		"interval":   "15m0s",
		"status":     status,
		"created_at": "2026-01-02T03:04:05Z",
		"updated_at": "2026-01-02T03:04:05Z",
	}
}

func runApp(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"sfviz", "--server-url", serverURL}, args...))
	return out.String(), err
}

func TestWatchAddCommand(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected string
	}{
		{name: "created", status: http.StatusCreated, expected: "✓ Watch created: " + testWatchID},
		{name: "updated", status: http.StatusOK, expected: "✓ Watch updated: " + testWatchID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/watches", r.URL.Path)

				var body map[string]interface{}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, []interface{}{testToken}, body["tokens"])
				assert.Equal(t, []interface{}{testSender, testReceiver}, body["accounts"])
				assert.Equal(t, "5m0s", body["interval"])

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(watchJSON("active"))
			}))
			defer srv.Close()

			out, err := runApp(t, srv.URL, "watch", "add",
				"-t", testToken, "-a", testSender, "-a", testReceiver, "--interval", "5m")
			require.NoError(t, err)
			assert.Contains(t, out, tt.expected)
			assert.Contains(t, out, "Interval:      15m0s")
		})
	}
}

func TestWatchAddCommand_RequiresSelection(t *testing.T) {
	_, err := runApp(t, "http://127.0.0.1:0", "watch", "add", "-t", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account")
}

func TestWatchListCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/watches", r.URL.Path)
		paused := watchJSON("paused")
		paused["id"] = "0d9f8e7c-6b5a-5493-8271-605f4e3d2c1b"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"watches": []interface{}{watchJSON("active"), paused},
			"count":   2,
		})
	}))
	defer srv.Close()

	t.Run("table", func(t *testing.T) {
		out, err := runApp(t, srv.URL, "watch", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "LAST SNAPSHOT")
		assert.Contains(t, out, testWatchID)
		assert.Contains(t, out, "0d9f8e7c-6b5a-5493-8271-605f4e3d2c1b")
	})

	t.Run("status filter as json", func(t *testing.T) {
		out, err := runApp(t, srv.URL, "--json", "watch", "list", "--status", "paused")
		require.NoError(t, err)

		var got []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "paused", got[0]["Status"])
	})
}

func TestWatchGetCommand_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "watch not found"})
	}))
	defer srv.Close()

	_, err := runApp(t, srv.URL, "watch", "get", testWatchID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch not found")
}

func TestWatchRemoveCommand(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/watches/"+testWatchID, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out, err := runApp(t, srv.URL, "watch", "rm", testWatchID)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "✓ Watch deleted: "+testWatchID)

	_, err = runApp(t, srv.URL, "watch", "rm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires exactly one argument")
}

func TestWatchSnapshotsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/watches/" + testWatchID + "/snapshots":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"snapshots": []map[string]interface{}{{
					"id":              7,
					"watch_id":        testWatchID,
					"block_number":    300,
					"block_timestamp": "2026-01-02T03:04:05Z",
					"node_count":      2,
					"edge_count":      1,
					"total_flow_rate": "1000",
					"created_at":      "2026-01-02T03:05:00Z",
				}},
				"count": 1,
			})
		case "/api/v1/watches/" + testWatchID + "/snapshots/latest":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":           7,
				"watch_id":     testWatchID,
				"block_number": 300,
				"graph":        map[string]interface{}{"nodes": []interface{}{}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	out, err := runApp(t, srv.URL, "watch", "snapshots", "--limit", "5", testWatchID)
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL FLOW RATE")
	assert.Contains(t, out, "300")

	out, err = runApp(t, srv.URL, "watch", "snapshots", "--latest", testWatchID)
	require.NoError(t, err)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, float64(300), snap["block_number"])
	assert.NotNil(t, snap["graph"])
}
