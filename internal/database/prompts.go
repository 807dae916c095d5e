package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreatePrompt inserts a new prompt and returns it with its id.
func (s *sqlxStore) CreatePrompt(ctx context.Context, title, text string) (*Prompt, error) {
	now := s.now()
	prompt := &Prompt{Title: title, Text: text, CreatedAt: now, UpdatedAt: now}

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO prompts (title, text, created_at, updated_at)
        VALUES (:title, :text, :created_at, :updated_at);`, prompt)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating prompt", "title", title, "error", err)
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt id: %w", err)
	}
	prompt.ID = id
	return prompt, nil
}

// UpdatePrompt replaces the title and text of prompt id.
func (s *sqlxStore) UpdatePrompt(ctx context.Context, id int64, title, text string) (*Prompt, error) {
	result, err := s.db.ExecContext(ctx, `
        UPDATE prompts SET title = ?, text = ?, updated_at = ? WHERE id = ?;`, title, text, s.now(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating prompt", "prompt_id", id, "error", err)
		return nil, fmt.Errorf("failed to update prompt %d: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, nil
	}
	return s.GetPrompt(ctx, id)
}

// DeletePrompt removes prompt id. Channels monitoring with it lose their
// prompt through the foreign key.
func (s *sqlxStore) DeletePrompt(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?;`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting prompt", "prompt_id", id, "error", err)
		return false, fmt.Errorf("failed to delete prompt %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	return err == nil && affected > 0, nil
}

// GetPrompt returns prompt id, or nil, nil if it does not exist.
func (s *sqlxStore) GetPrompt(ctx context.Context, id int64) (*Prompt, error) {
	var prompt Prompt
	err := s.db.GetContext(ctx, &prompt, `SELECT id, title, text, created_at, updated_at FROM prompts WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "Error getting prompt", "prompt_id", id, "error", err)
		return nil, fmt.Errorf("failed to get prompt %d: %w", id, err)
	}
	return &prompt, nil
}

// ListPrompts returns every prompt ordered by id.
func (s *sqlxStore) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var prompts []Prompt
	if err := s.db.SelectContext(ctx, &prompts, `SELECT id, title, text, created_at, updated_at FROM prompts ORDER BY id ASC;`); err != nil {
		s.logger.ErrorContext(ctx, "Error listing prompts", "error", err)
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return prompts, nil
}
