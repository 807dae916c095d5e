package config

import (
	"time"

	"github.com/spf13/viper"
)

// Task names known to the scheduler.
const (
	TaskRefreshMessages = "refresh_messages"
	TaskUserStats       = "user_stats"
	TaskSQLMaintenance  = "sql_maintenance"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)
	v.SetDefault("telegram.default_channels", []string{})
	v.SetDefault("telegram.history_size", 2000)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.system_instruction", "")
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 2)
	v.SetDefault("gemini.timeout", 5*time.Minute)
	v.SetDefault("gemini.breaker_failures", 5)
	v.SetDefault("gemini.breaker_cooldown", time.Minute)

	v.SetDefault("database.path", "chanwatch.db")

	v.SetDefault("analysis.max_chunk_bytes", 30_000)
	v.SetDefault("analysis.reply_iteration_cap", 64)
	v.SetDefault("analysis.merge_prompt_id", 0)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.prompt_id", 0)
	v.SetDefault("monitoring.users_limit", 50)

	v.SetDefault("profiles.refresh_concurrency", 5)

	v.SetDefault("scheduler.refresh_window", 24*time.Hour)
	v.SetDefault("scheduler.tasks."+TaskRefreshMessages+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskRefreshMessages+".schedule", "*/30 * * * *")
	v.SetDefault("scheduler.tasks."+TaskUserStats+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskUserStats+".schedule", "15 * * * *")
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".schedule", "0 4 * * 0")

	v.SetDefault("messages.welcome", "Channel watcher is running. Use /help to list commands.")
	v.SetDefault("messages.help", "/add <channel> - track a channel\n"+
		"/import - track every chat the bot has seen\n"+
		"/channels [search] - list tracked channels\n"+
		"/info <channel_id> - show channel details\n"+
		"/remove <channel_id...> - stop tracking channels\n"+
		"/monitor <channel_id...> <prompt_id> - monitor new messages\n"+
		"/unmonitor <channel_id...> - stop monitoring\n"+
		"/refresh [hours] - refresh the message cache\n"+
		"/analyze <prompt_id> <merge_prompt_id> <channel_id,...> [hours] - analyze channels\n"+
		"/prompt_add <title> | <text> - add a prompt\n"+
		"/prompts - list prompts\n"+
		"/users [search] - list known users\n"+
		"/profiles <user_id...> - refresh user profiles")
	v.SetDefault("messages.unauthorized", "You are not authorized to use this command.")
	v.SetDefault("messages.general_error", "An error occurred. Please try again later.")
	v.SetDefault("messages.working", "Working on it...")
	v.SetDefault("messages.nothing_to_show", "Nothing to show.")
	v.SetDefault("messages.usage_add", "Usage: /add <@handle | t.me link | id>")
	v.SetDefault("messages.usage_info", "Usage: /info <channel_id>")
	v.SetDefault("messages.usage_remove", "Usage: /remove <channel_id...>")
	v.SetDefault("messages.usage_monitor", "Usage: /monitor <channel_id...> <prompt_id> or /unmonitor <channel_id...>")
	v.SetDefault("messages.usage_analyze", "Usage: /analyze <prompt_id> <merge_prompt_id> <channel_id,...> [hours]")
	v.SetDefault("messages.usage_prompt_add", "Usage: /prompt_add <title> | <text>")
	v.SetDefault("messages.usage_profiles", "Usage: /profiles <user_id...>")
}
