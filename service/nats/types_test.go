package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/sfviz/service/db"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "snapshots.abc", Subject("abc"))
	assert.Equal(t, "snapshots.*", StreamSubjects)
}

func TestFromSnapshot(t *testing.T) {
	id := uuid.MustParse("6f1c2a3e-0000-5000-8000-000000000001")
	blockTime := time.Unix(1700000000, 0).UTC()

	w := &db.Watch{ID: id, Chain: 137}
	snap := &db.Snapshot{
		ID:             7,
		WatchID:        id,
		BlockNumber:    55,
		BlockTimestamp: blockTime,
		NodeCount:      3,
		EdgeCount:      2,
		TotalFlowRate:  "1000",
		Graph:          json.RawMessage(`{"nodes":[]}`),
	}

	event := FromSnapshot(w, snap)

	assert.Equal(t, id.String(), event.WatchID)
	assert.Equal(t, int64(137), event.Chain)
	assert.Equal(t, int64(55), event.BlockNumber)
	assert.Equal(t, blockTime, event.BlockTimestamp)
	assert.Equal(t, 3, event.NodeCount)
	assert.Equal(t, 2, event.EdgeCount)
	assert.Equal(t, "1000", event.TotalFlowRate)
	assert.WithinDuration(t, time.Now(), event.PublishedAt, 5*time.Second)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "nodes", "the graph itself is not carried on the event")
	assert.Contains(t, string(data), `"watch_id":"6f1c2a3e-0000-5000-8000-000000000001"`)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishSnapshot(ctx, &SnapshotEvent{WatchID: "a", BlockNumber: 1}))
	require.NoError(t, m.PublishSnapshot(ctx, &SnapshotEvent{WatchID: "b", BlockNumber: 2}))
	require.NoError(t, m.PublishSnapshot(ctx, &SnapshotEvent{WatchID: "a", BlockNumber: 3}))

	assert.Len(t, m.GetPublishedEvents(), 3)
	forA := m.GetPublishedEventsForWatch("a")
	require.Len(t, forA, 2)
	assert.Equal(t, int64(3), forA[1].BlockNumber)

	boom := errors.New("nats down")
	m.SetPublishError(boom)
	assert.ErrorIs(t, m.PublishSnapshot(ctx, &SnapshotEvent{WatchID: "c"}), boom)
	assert.Len(t, m.GetPublishedEvents(), 3)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
