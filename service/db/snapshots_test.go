package db

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestWatch(t *testing.T, store *Store) *Watch {
	t.Helper()
	w, _, err := store.UpsertWatch(context.Background(), UpsertWatchParams{
		Chain:    10,
		Tokens:   []string{testToken},
		Accounts: []string{testSender, testReceiver},
		Interval: 15 * time.Minute,
	})
	require.NoError(t, err)
	return w
}

func TestCreateSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	w := createTestWatch(t, store)

	blockTime := time.Unix(1700000000, 0).UTC()
	params := CreateSnapshotParams{
		WatchID:        w.ID,
		BlockNumber:    120000000,
		BlockTimestamp: blockTime,
		NodeCount:      2,
		EdgeCount:      1,
		TotalFlowRate:  "385802469135802",
		Graph:          json.RawMessage(`{"nodes":[],"edges":[]}`),
	}

	snap, err := store.CreateSnapshot(ctx, params)
	require.NoError(t, err)
	assert.NotZero(t, snap.ID)
	assert.Equal(t, w.ID, snap.WatchID)
	assert.Equal(t, int64(120000000), snap.BlockNumber)
	assert.Equal(t, "385802469135802", snap.TotalFlowRate)
	assert.WithinDuration(t, time.Now(), snap.CreatedAt, 5*time.Second)

	t.Run("duplicate block", func(t *testing.T) {
		_, err := store.CreateSnapshot(ctx, params)
		assert.ErrorIs(t, err, ErrDuplicateSnapshot)
	})

	t.Run("unknown watch", func(t *testing.T) {
		orphan := params
		orphan.WatchID = uuid.New()
		_, err := store.CreateSnapshot(ctx, orphan)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicateSnapshot)
	})

	exists, err := store.SnapshotExists(ctx, w.ID, 120000000)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.SnapshotExists(ctx, w.ID, 120000001)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetLatestSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	w := createTestWatch(t, store)

	_, err := store.GetLatestSnapshot(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// inserted out of block order
	for _, block := range []int64{200, 300, 100} {
		_, err := store.CreateSnapshot(ctx, CreateSnapshotParams{
			WatchID:        w.ID,
			BlockNumber:    block,
			BlockTimestamp: time.Unix(block*2, 0),
			TotalFlowRate:  "0",
			Graph:          json.RawMessage(fmt.Sprintf(`{"block":%d}`, block)),
		})
		require.NoError(t, err)
	}

	latest, err := store.GetLatestSnapshot(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), latest.BlockNumber)
	assert.JSONEq(t, `{"block":300}`, string(latest.Graph))
	assert.True(t, latest.BlockTimestamp.Equal(time.Unix(600, 0)))
}

func TestListSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	w := createTestWatch(t, store)

	for block := int64(1); block <= 5; block++ {
		_, err := store.CreateSnapshot(ctx, CreateSnapshotParams{
			WatchID:        w.ID,
			BlockNumber:    block,
			BlockTimestamp: time.Unix(block, 0),
			NodeCount:      int(block),
			TotalFlowRate:  "0",
			Graph:          json.RawMessage(`{"nodes":[]}`),
		})
		require.NoError(t, err)
	}

	blocks := func(snaps []*Snapshot) []int64 {
		out := make([]int64, len(snaps))
		for i, s := range snaps {
			out[i] = s.BlockNumber
		}
		return out
	}

	tests := []struct {
		name   string
		params ListSnapshotsParams
		want   []int64
	}{
		{name: "default limit", params: ListSnapshotsParams{WatchID: w.ID}, want: []int64{5, 4, 3, 2, 1}},
		{name: "limit", params: ListSnapshotsParams{WatchID: w.ID, Limit: 2}, want: []int64{5, 4}},
		{name: "offset", params: ListSnapshotsParams{WatchID: w.ID, Limit: 2, Offset: 2}, want: []int64{3, 2}},
		{name: "negative offset", params: ListSnapshotsParams{WatchID: w.ID, Limit: 1, Offset: -3}, want: []int64{5}},
		{name: "past the end", params: ListSnapshotsParams{WatchID: w.ID, Offset: 10}, want: []int64{}},
		{name: "other watch", params: ListSnapshotsParams{WatchID: uuid.New()}, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := store.ListSnapshots(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, blocks(snaps))
			for _, s := range snaps {
				assert.Nil(t, s.Graph, "graph is only loaded on request")
			}
		})
	}

	t.Run("include graph", func(t *testing.T) {
		snaps, err := store.ListSnapshots(ctx, ListSnapshotsParams{WatchID: w.ID, Limit: 1, IncludeGraph: true})
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.JSONEq(t, `{"nodes":[]}`, string(snaps[0].Graph))
	})
}
