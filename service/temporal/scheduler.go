package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for watches.
// Each watch gets its own schedule that triggers the SnapshotWatchWorkflow.
type Scheduler interface {
	// UpsertWatchSchedule creates the schedule for a watch, or updates its
	// interval if it already exists.
	UpsertWatchSchedule(ctx context.Context, watchID string, interval time.Duration) error

	// DeleteWatchSchedule deletes the schedule for a watch.
	DeleteWatchSchedule(ctx context.Context, watchID string) error
}

// scheduleID returns the Temporal schedule ID for a watch.
func scheduleID(watchID string) string {
	return "snapshot-watch-" + watchID
}
