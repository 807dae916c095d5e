package tasks

import (
	"context"
	"fmt"
	"time"
)

const defaultRefreshWindow = 24 * time.Hour

// newRefreshMessagesTask re-reads the trailing refresh window of every
// stored channel so edits and late replies reach the cache.
func newRefreshMessagesTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "refresh_messages")

	return func(ctx context.Context) error {
		window := defaultRefreshWindow
		if deps.Config != nil && deps.Config.Scheduler.RefreshWindow > 0 {
			window = deps.Config.Scheduler.RefreshWindow
		}
		to := deps.now().UTC()
		from := to.Add(-window)

		result, err := deps.Service.RefreshMessages(ctx, nil, from, to)
		if err != nil {
			return fmt.Errorf("refresh messages: %w", err)
		}
		log.InfoContext(ctx, "Message cache refreshed",
			"channels", len(result.Channels),
			"total", result.Total,
			"created", result.Created,
			"updated", result.Updated)
		return nil
	}
}
