// Package bot wires the chanwatch components together and manages their
// lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Listener receives platform updates until ctx is done.
type Listener interface {
	Start(ctx context.Context)
}

// Closer drains background work during shutdown.
type Closer interface {
	Close(ctx context.Context) error
}

// Bot runs the update listener and the scheduler side by side.
type Bot struct {
	logger    *slog.Logger
	listener  Listener
	scheduler *Scheduler
	monitor   Closer
}

// NewBot creates a Bot. monitor may be nil.
func NewBot(logger *slog.Logger, listener Listener, scheduler *Scheduler, monitor Closer) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		listener:  listener,
		scheduler: scheduler,
		monitor:   monitor,
	}
}

// Run blocks until ctx is cancelled or a component fails. On the way out it
// stops the scheduler and drains in-flight monitoring runs.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.listener.Start(gCtx)
		if gCtx.Err() == nil {
			return errors.New("telegram listener stopped unexpectedly")
		}
		b.logger.Info("Telegram listener stopped")
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()

	if b.monitor != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if closeErr := b.monitor.Close(closeCtx); closeErr != nil {
			b.logger.Warn("Monitoring did not drain before shutdown", "error", closeErr)
		}
		cancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}
	b.logger.Info("Bot orchestrator stopped gracefully")
	return nil
}
