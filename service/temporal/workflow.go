package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// SnapshotWatchWorkflow takes one snapshot of a watch. It is triggered by the
// watch's Temporal schedule.
//
// The workflow performs these steps:
// 1. Fetch and reconcile the watch's selection at the latest block (BuildWatchGraph)
// 2. Stop if that block was already snapshotted
// 3. Persist the snapshot and announce it (WriteSnapshot)
func SnapshotWatchWorkflow(ctx workflow.Context, input SnapshotWatchInput) (*SnapshotWatchResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SnapshotWatchWorkflow started", "watch_id", input.WatchID)

	result := &SnapshotWatchResult{
		WatchID: input.WatchID,
		RunTime: workflow.Now(ctx),
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var built *BuildWatchGraphResult
	err := workflow.ExecuteActivity(ctx, a.BuildWatchGraph, BuildWatchGraphInput{WatchID: input.WatchID}).Get(ctx, &built)
	if err != nil {
		logger.Error("failed to build watch graph", "watch_id", input.WatchID, "error", err)
		return nil, fmt.Errorf("failed to build watch graph: %w", err)
	}

	result.BlockNumber = built.BlockNumber
	result.NodeCount = built.NodeCount
	result.EdgeCount = built.EdgeCount

	if built.AlreadySnapshotted {
		logger.Info("no new block since the last snapshot",
			"watch_id", input.WatchID,
			"block", built.BlockNumber,
		)
		result.Skipped = true
		return result, nil
	}

	var written *WriteSnapshotResult
	err = workflow.ExecuteActivity(ctx, a.WriteSnapshot, WriteSnapshotInput{
		WatchID:        input.WatchID,
		Chain:          built.Chain,
		BlockNumber:    built.BlockNumber,
		BlockTimestamp: built.BlockTimestamp,
		NodeCount:      built.NodeCount,
		EdgeCount:      built.EdgeCount,
		TotalFlowRate:  built.TotalFlowRate,
		Graph:          built.Graph,
	}).Get(ctx, &written)
	if err != nil {
		logger.Error("failed to write snapshot", "watch_id", input.WatchID, "error", err)
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	result.SnapshotID = written.SnapshotID
	result.Skipped = written.Duplicate

	logger.Info("SnapshotWatchWorkflow completed successfully",
		"watch_id", input.WatchID,
		"block", result.BlockNumber,
		"snapshot_id", result.SnapshotID,
	)
	return result, nil
}
