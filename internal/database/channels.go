package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
)

// maxMonitoringErrorLen bounds the error text stored on a channel.
const maxMonitoringErrorLen = 4000

const channelColumns = `
    id, username, title, channel_type, link,
    monitoring_enabled, monitoring_prompt_id, monitoring_last_message_id,
    monitoring_last_message_at, monitoring_last_error, monitoring_updated_at,
    created_at, updated_at`

// UpsertChannel inserts a channel or refreshes its projection fields. The
// monitoring configuration of an existing row is left untouched.
func (s *sqlxStore) UpsertChannel(ctx context.Context, channel *Channel) error {
	if channel == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	if channel.ID == 0 {
		return fmt.Errorf("channel must have a non-zero id")
	}
	if channel.ChannelType == "" {
		channel.ChannelType = ChannelTypeChannel
	}

	now := s.now()
	channel.CreatedAt = now
	channel.UpdatedAt = now

	query := `
        INSERT INTO channels (id, username, title, channel_type, link, monitoring_enabled, created_at, updated_at)
        VALUES (:id, :username, :title, :channel_type, :link, :monitoring_enabled, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            username = excluded.username,
            title = excluded.title,
            channel_type = excluded.channel_type,
            link = excluded.link,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, channel); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting channel", "channel_id", channel.ID, "error", err)
		return fmt.Errorf("failed to upsert channel %d: %w", channel.ID, err)
	}

	stored, err := s.GetChannel(ctx, channel.ID)
	if err != nil {
		return err
	}
	if stored != nil {
		*channel = *stored
	}
	s.logger.DebugContext(ctx, "Channel upserted", "channel_id", channel.ID, "title", channel.Title)
	return nil
}

// GetChannel returns the channel with id, or nil, nil if it does not exist.
func (s *sqlxStore) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	var channel Channel
	err := s.db.GetContext(ctx, &channel, `SELECT `+channelColumns+` FROM channels WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "Error getting channel", "channel_id", id, "error", err)
		return nil, fmt.Errorf("failed to get channel %d: %w", id, err)
	}
	return &channel, nil
}

// GetChannelsByIDs returns the known channels among ids ordered by id.
func (s *sqlxStore) GetChannelsByIDs(ctx context.Context, ids []int64) ([]Channel, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+channelColumns+` FROM channels WHERE id IN (?) ORDER BY id ASC;`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel query: %w", err)
	}
	var channels []Channel
	if err := s.db.SelectContext(ctx, &channels, s.db.Rebind(query), args...); err != nil {
		s.logger.ErrorContext(ctx, "Error getting channels by ids", "count", len(ids), "error", err)
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	return channels, nil
}

// ListChannels returns all channels, optionally filtered by a case-insensitive
// match on title or username.
func (s *sqlxStore) ListChannels(ctx context.Context, search string) ([]Channel, error) {
	var channels []Channel
	search = strings.TrimSpace(search)
	var err error
	if search == "" {
		err = s.db.SelectContext(ctx, &channels, `SELECT `+channelColumns+` FROM channels ORDER BY id ASC;`)
	} else {
		pattern := "%" + strings.ToLower(search) + "%"
		err = s.db.SelectContext(ctx, &channels, `
            SELECT `+channelColumns+` FROM channels
            WHERE lower(title) LIKE ? OR lower(COALESCE(username, '')) LIKE ? OR CAST(id AS TEXT) LIKE ?
            ORDER BY id ASC;`, pattern, pattern, pattern)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing channels", "search", search, "error", err)
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// ListMonitoredChannels returns channels with monitoring enabled.
func (s *sqlxStore) ListMonitoredChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	if err := s.db.SelectContext(ctx, &channels, `SELECT `+channelColumns+` FROM channels WHERE monitoring_enabled = 1 ORDER BY id ASC;`); err != nil {
		s.logger.ErrorContext(ctx, "Error listing monitored channels", "error", err)
		return nil, fmt.Errorf("failed to list monitored channels: %w", err)
	}
	return channels, nil
}

// DeleteChannel removes the channel, its cached messages, per-user counts and
// monitoring runs in one transaction.
func (s *sqlxStore) DeleteChannel(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, "delete_channel", func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM messages WHERE channel_id = ?;`,
			`DELETE FROM channel_users WHERE channel_id = ?;`,
			`DELETE FROM monitoring_runs WHERE channel_id = ?;`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("failed to delete channel %d data: %w", id, err)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("failed to delete channel %d: %w", id, err)
		}
		affected, err := result.RowsAffected()
		deleted = err == nil && affected > 0
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting channel", "channel_id", id, "error", err)
		return false, err
	}
	s.logger.InfoContext(ctx, "Channel deleted", "channel_id", id, "deleted", deleted)
	return deleted, nil
}

// SetChannelsMonitoring toggles monitoring for ids. A nil promptID keeps the
// configured prompt. The updated channels are returned ordered by id.
func (s *sqlxStore) SetChannelsMonitoring(ctx context.Context, ids []int64, enabled bool, promptID *int64) ([]Channel, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	now := s.now()
	var (
		query string
		args  []any
		err   error
	)
	if promptID != nil {
		query, args, err = sqlx.In(`
            UPDATE channels SET monitoring_enabled = ?, monitoring_prompt_id = ?, monitoring_updated_at = ?, updated_at = ?
            WHERE id IN (?);`, enabled, *promptID, now, now, ids)
	} else {
		query, args, err = sqlx.In(`
            UPDATE channels SET monitoring_enabled = ?, monitoring_updated_at = ?, updated_at = ?
            WHERE id IN (?);`, enabled, now, now, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build monitoring update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		s.logger.ErrorContext(ctx, "Error updating channel monitoring", "count", len(ids), "error", err)
		return nil, fmt.Errorf("failed to update channel monitoring: %w", err)
	}
	return s.GetChannelsByIDs(ctx, ids)
}

// SetMonitoringSuccess records the last processed message and clears the
// last error.
func (s *sqlxStore) SetMonitoringSuccess(ctx context.Context, channelID, messageID int64, messageAt time.Time) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
        UPDATE channels SET
            monitoring_last_message_id = ?,
            monitoring_last_message_at = ?,
            monitoring_last_error = NULL,
            monitoring_updated_at = ?
        WHERE id = ?;`, messageID, messageAt.UTC(), now, channelID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording monitoring success", "channel_id", channelID, "error", err)
		return fmt.Errorf("failed to record monitoring success for channel %d: %w", channelID, err)
	}
	return nil
}

// SetMonitoringError records errText (truncated) as the channel's last error.
func (s *sqlxStore) SetMonitoringError(ctx context.Context, channelID int64, errText string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
        UPDATE channels SET monitoring_last_error = ?, monitoring_updated_at = ?
        WHERE id = ?;`, truncateRunes(errText, maxMonitoringErrorLen), now, channelID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording monitoring error", "channel_id", channelID, "error", err)
		return fmt.Errorf("failed to record monitoring error for channel %d: %w", channelID, err)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
