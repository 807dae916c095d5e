package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/chanwatch/internal/payload"
)

// MessageStore persists cached platform messages.
type MessageStore interface {
	// UpsertMessages writes sanitized documents for one channel in a single
	// transaction, inserting new rows and updating only rows whose payload
	// changed.
	UpsertMessages(ctx context.Context, channelID int64, docs []payload.Document) (UpsertStats, error)

	// ListMessagesByDate returns messages in [from, to] ordered by timestamp then id.
	ListMessagesByDate(ctx context.Context, channelID int64, from, to time.Time) ([]Message, error)

	// ListMessagesByIDs returns the cached subset of ids ordered by timestamp then id.
	ListMessagesByIDs(ctx context.Context, channelID int64, ids []int64) ([]Message, error)

	// AggregateUserMessageStats counts cached messages per user and channel.
	AggregateUserMessageStats(ctx context.Context) ([]UserMessageStats, error)
}

// ChannelStore persists channel projections and monitoring configuration.
type ChannelStore interface {
	UpsertChannel(ctx context.Context, channel *Channel) error
	// GetChannel returns nil, nil if the channel is unknown.
	GetChannel(ctx context.Context, id int64) (*Channel, error)
	GetChannelsByIDs(ctx context.Context, ids []int64) ([]Channel, error)
	ListChannels(ctx context.Context, search string) ([]Channel, error)
	ListMonitoredChannels(ctx context.Context) ([]Channel, error)
	// DeleteChannel removes a channel with its cached messages and runs.
	DeleteChannel(ctx context.Context, id int64) (bool, error)
	SetChannelsMonitoring(ctx context.Context, ids []int64, enabled bool, promptID *int64) ([]Channel, error)
	SetMonitoringSuccess(ctx context.Context, channelID, messageID int64, messageAt time.Time) error
	SetMonitoringError(ctx context.Context, channelID int64, errText string) error
}

// PromptStore persists analysis prompts.
type PromptStore interface {
	CreatePrompt(ctx context.Context, title, text string) (*Prompt, error)
	// UpdatePrompt returns nil, nil if the prompt is unknown.
	UpdatePrompt(ctx context.Context, id int64, title, text string) (*Prompt, error)
	DeletePrompt(ctx context.Context, id int64) (bool, error)
	// GetPrompt returns nil, nil if the prompt is unknown.
	GetPrompt(ctx context.Context, id int64) (*Prompt, error)
	ListPrompts(ctx context.Context) ([]Prompt, error)
}

// UserStore persists subjects and their conclusions.
type UserStore interface {
	UpsertUser(ctx context.Context, user *User) error
	EnsureUsersExist(ctx context.Context, ids []int64) error
	// GetUser returns nil, nil if the user is unknown.
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error)
	ListUsers(ctx context.Context, search string, offset, limit int) ([]User, error)
	ListUsersWithConclusions(ctx context.Context, limit int) ([]User, error)
	GetConclusions(ctx context.Context, ids []int64) (map[int64]map[string]any, error)
	// MergeConclusions deep-merges each partial conclusion into the stored one.
	MergeConclusions(ctx context.Context, partials map[int64]map[string]any) error
	ReplaceUserMessageStats(ctx context.Context, stats []UserMessageStats) error
}

// RunStore persists monitoring run records.
type RunStore interface {
	HasSuccessfulRun(ctx context.Context, channelID, messageID, promptID int64) (bool, error)
	// SaveRun upserts the record for the run's key; the latest attempt wins.
	SaveRun(ctx context.Context, run *MonitoringRun) error
	// GetRun returns nil, nil if no attempt was recorded.
	GetRun(ctx context.Context, channelID, messageID, promptID int64) (*MonitoringRun, error)
}

// Store defines every database operation used by the application.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	MessageStore
	ChannelStore
	PromptStore
	UserStore
	RunStore

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by a connected sqlx.DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on error.
func (s *sqlxStore) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "operation", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

// dedupeIDs drops duplicates while keeping first-seen order.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
