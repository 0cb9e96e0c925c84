package nats

import (
	"time"

	"github.com/brojonat/sfviz/service/db"
)

// SnapshotEvent announces a new snapshot of a watch.
// It is published to the subject "snapshots.{watch_id}" in JetStream.
type SnapshotEvent struct {
	WatchID string `json:"watch_id"`
	Chain   int64  `json:"chain"`

	// Block the snapshot was taken at
	BlockNumber    int64     `json:"block_number"`
	BlockTimestamp time.Time `json:"block_timestamp"`

	// Graph summary; the full graph is fetched from the API
	NodeCount     int    `json:"node_count"`
	EdgeCount     int    `json:"edge_count"`
	TotalFlowRate string `json:"total_flow_rate"`

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject events for watchID are published on.
func Subject(watchID string) string {
	return SubjectPrefix + watchID
}

// FromSnapshot converts a stored snapshot of w into an event for publishing.
func FromSnapshot(w *db.Watch, snap *db.Snapshot) *SnapshotEvent {
	return &SnapshotEvent{
		WatchID:        snap.WatchID.String(),
		Chain:          w.Chain,
		BlockNumber:    snap.BlockNumber,
		BlockTimestamp: snap.BlockTimestamp,
		NodeCount:      snap.NodeCount,
		EdgeCount:      snap.EdgeCount,
		TotalFlowRate:  snap.TotalFlowRate,
		PublishedAt:    time.Now().UTC(),
	}
}
