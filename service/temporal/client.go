package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// createWatchSchedule creates a schedule that snapshots the watch every interval.
// The first snapshot is taken immediately.
func (c *Client) createWatchSchedule(ctx context.Context, watchID string, interval time.Duration) error {
	id := scheduleID(watchID)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "snapshot-watch-" + watchID,
			Workflow:  SnapshotWatchWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{SnapshotWatchInput{WatchID: watchID}},
		},
		TriggerImmediately: true,
		Memo: map[string]interface{}{
			"watch_id":   watchID,
			"created_by": "sfviz",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"watch_id", watchID,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule created",
		"watch_id", watchID,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertWatchSchedule creates or updates the Temporal schedule for a watch.
// If the schedule already exists, it updates the interval and unpauses it.
func (c *Client) UpsertWatchSchedule(ctx context.Context, watchID string, interval time.Duration) error {
	id := scheduleID(watchID)

	c.logger.Debug("upserting watch schedule",
		"watch_id", watchID,
		"schedule_id", id,
		"interval", interval,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.createWatchSchedule(ctx, watchID, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			if input.Description.Schedule.State != nil {
				input.Description.Schedule.State.Paused = false
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"watch_id", watchID,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule updated",
		"watch_id", watchID,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteWatchSchedule deletes the Temporal schedule for a watch.
func (c *Client) DeleteWatchSchedule(ctx context.Context, watchID string) error {
	id := scheduleID(watchID)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"watch_id", watchID,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule deleted",
		"watch_id", watchID,
		"schedule_id", id,
	)
	return nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
