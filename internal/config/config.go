// Package config defines the application configuration and loads it from a
// YAML file, CHANWATCH_* environment variables and built-in defaults.
package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config is the root configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Profiles   ProfilesConfig   `mapstructure:"profiles"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Messages   MessagesConfig   `mapstructure:"messages"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds bot credentials and platform settings.
type TelegramConfig struct {
	Token       string `mapstructure:"token"         validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"required,gt=0"`

	// DefaultChannels are identifiers put under monitoring on startup.
	DefaultChannels []string `mapstructure:"default_channels" validate:"dive,required"`

	// HistorySize bounds the per-chat message buffer served to lookups.
	HistorySize int `mapstructure:"history_size" validate:"min=10,max=100000"`

	BotInfo *models.User `mapstructure:"-" validate:"-"`
}

// GeminiConfig configures the completion service client.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"             validate:"required"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	Temperature       float32       `mapstructure:"temperature"         validate:"min=0,max=2"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0,max=120"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"min=1s,max=30m"`

	// BreakerFailures consecutive failed calls pause the client for
	// BreakerCooldown.
	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=1,max=100"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"min=1s,max=1h"`
}

// DatabaseConfig configures storage.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AnalysisConfig tunes the chunked analysis pipeline.
type AnalysisConfig struct {
	MaxChunkBytes     int   `mapstructure:"max_chunk_bytes"     validate:"min=1000"`
	ReplyIterationCap int   `mapstructure:"reply_iteration_cap" validate:"min=1,max=1024"`
	MergePromptID     int64 `mapstructure:"merge_prompt_id"     validate:"min=0"`
}

// MonitoringConfig tunes the live monitoring pipeline.
type MonitoringConfig struct {
	Enabled    bool  `mapstructure:"enabled"`
	PromptID   int64 `mapstructure:"prompt_id"   validate:"min=0"`
	UsersLimit int   `mapstructure:"users_limit" validate:"min=0,max=200"`
}

// ProfilesConfig tunes user profile refreshes.
type ProfilesConfig struct {
	RefreshConcurrency int `mapstructure:"refresh_concurrency" validate:"min=1,max=50"`
}

// SchedulerConfig holds periodic task settings keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`

	// RefreshWindow is how far back the refresh_messages task reads.
	RefreshWindow time.Duration `mapstructure:"refresh_window" validate:"min=1m"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing bot replies.
type MessagesConfig struct {
	Welcome        string `mapstructure:"welcome"         validate:"required"`
	Help           string `mapstructure:"help"            validate:"required"`
	Unauthorized   string `mapstructure:"unauthorized"    validate:"required"`
	GeneralError   string `mapstructure:"general_error"   validate:"required"`
	Working        string `mapstructure:"working"         validate:"required"`
	NothingToShow  string `mapstructure:"nothing_to_show" validate:"required"`
	UsageAdd       string `mapstructure:"usage_add"       validate:"required"`
	UsageInfo      string `mapstructure:"usage_info"      validate:"required"`
	UsageRemove    string `mapstructure:"usage_remove"    validate:"required"`
	UsageMonitor   string `mapstructure:"usage_monitor"   validate:"required"`
	UsageAnalyze   string `mapstructure:"usage_analyze"   validate:"required"`
	UsagePromptAdd string `mapstructure:"usage_prompt_add" validate:"required"`
	UsageProfiles  string `mapstructure:"usage_profiles"  validate:"required"`
}
