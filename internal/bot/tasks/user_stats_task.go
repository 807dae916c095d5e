package tasks

import (
	"context"
	"fmt"
)

func newUserStatsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "user_stats")

	return func(ctx context.Context) error {
		result, err := deps.Service.RefreshUserMessageStats(ctx)
		if err != nil {
			return fmt.Errorf("refresh user stats: %w", err)
		}
		for _, e := range result.Errors {
			log.WarnContext(ctx, "User stats refresh error", "error", e)
		}
		log.InfoContext(ctx, "User message stats refreshed",
			"users", result.UsersUpdated,
			"channels", result.ChannelsWithMessages,
			"messages", result.MessagesTotal)
		return nil
	}
}
