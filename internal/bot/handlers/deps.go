// Package handlers contains the Telegram command handlers, their middleware
// and registration table.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/chanwatch/internal/config"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/mediator"
)

// Mediator is the subset of mediator.Service the commands drive.
type Mediator interface {
	UpsertChannelFromIdentifier(ctx context.Context, raw string) (*database.Channel, error)
	ImportDialogs(ctx context.Context) ([]database.Channel, error)
	ListChannels(ctx context.Context, search string) ([]database.Channel, error)
	GetChannelDetails(ctx context.Context, channelID int64) (*mediator.ChannelDetails, error)
	RemoveChannel(ctx context.Context, channelID int64) error
	SetChannelMonitoring(ctx context.Context, channelIDs []int64, enabled bool, promptID *int64) ([]database.Channel, error)
	RefreshMessages(ctx context.Context, channelIDs []int64, from, to time.Time) (mediator.RefreshResult, error)
	AnalyzeSelectedChannels(ctx context.Context, promptID, mergePromptID int64, channelIDs []int64, from, to time.Time) (mediator.AnalysisResult, error)
	CreatePrompt(ctx context.Context, title, text string) (*database.Prompt, error)
	ListPrompts(ctx context.Context) ([]database.Prompt, error)
	ListUsers(ctx context.Context, search string, offset, limit int) ([]database.User, error)
	RefreshUserProfiles(ctx context.Context, userIDs []int64) (mediator.ProfileRefreshResult, error)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Service Mediator

	// Typing shows a chat action while a slow command runs and returns a
	// function that stops it. Optional.
	Typing func(ctx context.Context, chatID int64) (stop func())

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d HandlerDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
