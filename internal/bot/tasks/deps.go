// Package tasks implements the periodic jobs run by the scheduler: message
// cache refreshes, user statistics and database maintenance.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/chanwatch/internal/config"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/mediator"
)

// Mediator is the subset of mediator.Service used by tasks.
type Mediator interface {
	RefreshMessages(ctx context.Context, channelIDs []int64, from, to time.Time) (mediator.RefreshResult, error)
	RefreshUserMessageStats(ctx context.Context) (mediator.StatsRefreshResult, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Service Mediator
	Config  *config.Config

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
