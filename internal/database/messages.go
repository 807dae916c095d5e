package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/chanwatch/internal/payload"
)

// maxInParams bounds the number of ids bound into a single IN clause.
const maxInParams = 500

const upsertMessageQuery = `
    INSERT INTO messages (channel_id, message_id, timestamp, payload, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?)
    ON CONFLICT (channel_id, message_id) DO UPDATE SET
        timestamp = excluded.timestamp,
        payload = excluded.payload,
        updated_at = excluded.updated_at
    WHERE messages.payload IS NOT excluded.payload;
`

type pendingMessage struct {
	id      int64
	ts      time.Time
	payload string
}

// UpsertMessages writes docs for channelID. Documents without an id or a
// parseable date are skipped. Unchanged payloads are not rewritten and are
// counted neither as upserted nor as modified.
func (s *sqlxStore) UpsertMessages(ctx context.Context, channelID int64, docs []payload.Document) (UpsertStats, error) {
	var stats UpsertStats
	if channelID == 0 {
		return stats, fmt.Errorf("channel_id cannot be zero")
	}

	pending := make([]pendingMessage, 0, len(docs))
	for _, doc := range docs {
		clean := payload.SanitizeDocument(doc)
		id, hasID := clean.ID()
		ts, hasDate := clean.Date()
		if !hasID || !hasDate {
			stats.Skipped++
			continue
		}
		ts = ts.Truncate(time.Second)
		clean["id"] = id
		clean.SetDate(ts)

		data, err := payload.Encode(clean)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping message with unencodable payload", "channel_id", channelID, "message_id", id, "error", err)
			stats.Skipped++
			continue
		}
		pending = append(pending, pendingMessage{id: id, ts: ts, payload: string(data)})
	}

	if len(pending) == 0 {
		return stats, nil
	}

	err := s.inTx(ctx, "upsert_messages", func(tx *sqlx.Tx) error {
		ids := make([]int64, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.id)
		}
		current, err := s.currentPayloads(ctx, tx, channelID, dedupeIDs(ids))
		if err != nil {
			return err
		}

		now := s.now()
		for _, p := range pending {
			stats.Processed++
			prev, found := current[p.id]
			if found && prev == p.payload {
				continue
			}

			result, err := tx.ExecContext(ctx, upsertMessageQuery, channelID, p.id, p.ts, p.payload, now, now)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					s.logger.WarnContext(ctx, "Message upsert interrupted", "channel_id", channelID, "error", err)
				} else {
					s.logger.ErrorContext(ctx, "Error upserting message", "channel_id", channelID, "message_id", p.id, "error", err)
				}
				return fmt.Errorf("failed to upsert message (channel %d, message %d): %w", channelID, p.id, err)
			}

			if affected, err := result.RowsAffected(); err == nil && affected == 0 {
				continue
			}
			if found {
				stats.Modified++
			} else {
				stats.Upserted++
			}
			current[p.id] = p.payload
		}
		return nil
	})
	if err != nil {
		return UpsertStats{}, err
	}

	s.logger.DebugContext(ctx, "Messages upserted",
		"channel_id", channelID, "processed", stats.Processed, "upserted", stats.Upserted,
		"modified", stats.Modified, "skipped", stats.Skipped)
	return stats, nil
}

func (s *sqlxStore) currentPayloads(ctx context.Context, tx *sqlx.Tx, channelID int64, ids []int64) (map[int64]string, error) {
	current := make(map[int64]string, len(ids))
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		query, args, err := sqlx.In(`SELECT message_id, payload FROM messages WHERE channel_id = ? AND message_id IN (?)`, channelID, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build existing payload query: %w", err)
		}

		var rows []struct {
			MessageID int64  `db:"message_id"`
			Payload   string `db:"payload"`
		}
		if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
			s.logger.ErrorContext(ctx, "Error loading existing payloads", "channel_id", channelID, "error", err)
			return nil, fmt.Errorf("failed to load existing payloads: %w", err)
		}
		for _, r := range rows {
			current[r.MessageID] = r.Payload
		}
	}
	return current, nil
}

// ListMessagesByDate returns cached messages of channelID dated within [from, to].
func (s *sqlxStore) ListMessagesByDate(ctx context.Context, channelID int64, from, to time.Time) ([]Message, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	query := `
        SELECT channel_id, message_id, timestamp, payload, created_at, updated_at
        FROM messages
        WHERE channel_id = ? AND timestamp >= ? AND timestamp <= ?
        ORDER BY timestamp ASC, message_id ASC;
    `
	if err := s.db.SelectContext(ctx, &messages, query, channelID, from.UTC(), to.UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages by date", "channel_id", channelID, "error", err)
		return nil, fmt.Errorf("failed to list messages for channel %d: %w", channelID, err)
	}
	return messages, nil
}

// ListMessagesByIDs returns the cached messages among ids.
func (s *sqlxStore) ListMessagesByIDs(ctx context.Context, channelID int64, ids []int64) ([]Message, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var messages []Message
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		query, args, err := sqlx.In(`
            SELECT channel_id, message_id, timestamp, payload, created_at, updated_at
            FROM messages
            WHERE channel_id = ? AND message_id IN (?);
        `, channelID, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to build message id query: %w", err)
		}

		var batch []Message
		if err := s.db.SelectContext(ctx, &batch, s.db.Rebind(query), args...); err != nil {
			s.logger.ErrorContext(ctx, "Error listing messages by ids", "channel_id", channelID, "error", err)
			return nil, fmt.Errorf("failed to list messages by ids for channel %d: %w", channelID, err)
		}
		messages = append(messages, batch...)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.Timestamp.IsZero() != b.Timestamp.IsZero() {
			return a.Timestamp.IsZero()
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.MessageID < b.MessageID
	})
	return messages, nil
}

// AggregateUserMessageStats counts cached messages per sender and channel.
func (s *sqlxStore) AggregateUserMessageStats(ctx context.Context) ([]UserMessageStats, error) {
	var rows []ChannelUser
	query := `
        SELECT channel_id, user_id, COUNT(*) AS messages_count
        FROM (
            SELECT channel_id,
                   COALESCE(
                       json_extract(payload, '$.from_id.user_id'),
                       json_extract(payload, '$.from.id'),
                       json_extract(payload, '$.sender_id')
                   ) AS user_id
            FROM messages
        )
        WHERE user_id IS NOT NULL
        GROUP BY channel_id, user_id
        ORDER BY user_id ASC, channel_id ASC;
    `
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		s.logger.ErrorContext(ctx, "Error aggregating user message stats", "error", err)
		return nil, fmt.Errorf("failed to aggregate user message stats: %w", err)
	}

	var stats []UserMessageStats
	for _, r := range rows {
		if len(stats) == 0 || stats[len(stats)-1].UserID != r.UserID {
			stats = append(stats, UserMessageStats{UserID: r.UserID})
		}
		last := &stats[len(stats)-1]
		last.Total += r.MessagesCount
		last.Channels = append(last.Channels, r)
	}
	return stats, nil
}
