package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// HasSuccessfulRun reports whether the key already has a success record.
func (s *sqlxStore) HasSuccessfulRun(ctx context.Context, channelID, messageID, promptID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
        SELECT COUNT(*) FROM monitoring_runs
        WHERE channel_id = ? AND message_id = ? AND prompt_id = ? AND status = ?;`,
		channelID, messageID, promptID, RunStatusSuccess)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error checking monitoring run", "channel_id", channelID, "message_id", messageID, "prompt_id", promptID, "error", err)
		return false, fmt.Errorf("failed to check monitoring run: %w", err)
	}
	return count > 0, nil
}

// SaveRun upserts run by its (channel, message, prompt) key.
func (s *sqlxStore) SaveRun(ctx context.Context, run *MonitoringRun) error {
	if run == nil {
		return fmt.Errorf("cannot save nil monitoring run")
	}
	if run.Status != RunStatusSuccess && run.Status != RunStatusError {
		return fmt.Errorf("invalid monitoring run status %q", run.Status)
	}

	now := s.now()
	run.CreatedAt = now
	run.UpdatedAt = now

	query := `
        INSERT INTO monitoring_runs (
            channel_id, message_id, prompt_id, attempt_id, status,
            request_payload, response_text, error, created_at, updated_at
        ) VALUES (
            :channel_id, :message_id, :prompt_id, :attempt_id, :status,
            :request_payload, :response_text, :error, :created_at, :updated_at
        )
        ON CONFLICT (channel_id, message_id, prompt_id) DO UPDATE SET
            attempt_id = excluded.attempt_id,
            status = excluded.status,
            request_payload = excluded.request_payload,
            response_text = excluded.response_text,
            error = excluded.error,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		s.logger.ErrorContext(ctx, "Error saving monitoring run",
			"channel_id", run.ChannelID, "message_id", run.MessageID, "prompt_id", run.PromptID, "status", run.Status, "error", err)
		return fmt.Errorf("failed to save monitoring run: %w", err)
	}
	return nil
}

// GetRun returns the record for the key, or nil, nil.
func (s *sqlxStore) GetRun(ctx context.Context, channelID, messageID, promptID int64) (*MonitoringRun, error) {
	var run MonitoringRun
	err := s.db.GetContext(ctx, &run, `
        SELECT id, channel_id, message_id, prompt_id, attempt_id, status,
               request_payload, response_text, error, created_at, updated_at
        FROM monitoring_runs
        WHERE channel_id = ? AND message_id = ? AND prompt_id = ?;`, channelID, messageID, promptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get monitoring run: %w", err)
	}
	return &run, nil
}
