package tasks

import (
	"context"

	"github.com/edgard/chanwatch/internal/config"
)

// ScheduledTaskFunc is the signature of every scheduled task. Tasks must
// respect ctx cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every task keyed by the name used in the
// scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		config.TaskRefreshMessages: newRefreshMessagesTask(deps),
		config.TaskUserStats:       newUserStatsTask(deps),
		config.TaskSQLMaintenance:  newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
