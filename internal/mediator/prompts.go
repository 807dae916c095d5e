package mediator

import (
	"context"
	"strings"

	"github.com/edgard/chanwatch/internal/apperr"
	"github.com/edgard/chanwatch/internal/database"
)

// prompt loads a prompt and its trimmed text, which must not be empty.
func (s *Service) prompt(ctx context.Context, id int64) (*database.Prompt, string, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, "", apperr.Persistence("failed to load prompt", err)
	}
	if p == nil {
		return nil, "", apperr.NotFound("prompt %d not found", id)
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, "", apperr.InvalidInput("prompt %d text is empty", id)
	}
	return p, text, nil
}

// CreatePrompt stores a new prompt.
func (s *Service) CreatePrompt(ctx context.Context, title, text string) (*database.Prompt, error) {
	title, text = strings.TrimSpace(title), strings.TrimSpace(text)
	if title == "" || text == "" {
		return nil, apperr.InvalidInput("prompt title and text are required")
	}
	p, err := s.store.CreatePrompt(ctx, title, text)
	if err != nil {
		return nil, apperr.Persistence("failed to create prompt", err)
	}
	return p, nil
}

// UpdatePrompt replaces a prompt's title and text.
func (s *Service) UpdatePrompt(ctx context.Context, id int64, title, text string) (*database.Prompt, error) {
	title, text = strings.TrimSpace(title), strings.TrimSpace(text)
	if title == "" || text == "" {
		return nil, apperr.InvalidInput("prompt title and text are required")
	}
	p, err := s.store.UpdatePrompt(ctx, id, title, text)
	if err != nil {
		return nil, apperr.Persistence("failed to update prompt", err)
	}
	if p == nil {
		return nil, apperr.NotFound("prompt %d not found", id)
	}
	return p, nil
}

// DeletePrompt removes a prompt. Channels monitoring with it lose their
// prompt.
func (s *Service) DeletePrompt(ctx context.Context, id int64) error {
	deleted, err := s.store.DeletePrompt(ctx, id)
	if err != nil {
		return apperr.Persistence("failed to delete prompt", err)
	}
	if !deleted {
		return apperr.NotFound("prompt %d not found", id)
	}
	return nil
}

// GetPrompt returns one prompt.
func (s *Service) GetPrompt(ctx context.Context, id int64) (*database.Prompt, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("failed to load prompt", err)
	}
	if p == nil {
		return nil, apperr.NotFound("prompt %d not found", id)
	}
	return p, nil
}

// ListPrompts returns all prompts.
func (s *Service) ListPrompts(ctx context.Context) ([]database.Prompt, error) {
	prompts, err := s.store.ListPrompts(ctx)
	if err != nil {
		return nil, apperr.Persistence("failed to list prompts", err)
	}
	return prompts, nil
}
