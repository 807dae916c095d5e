package handlers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const promptPreviewRunes = 80

// addPrompt handles "<title> | <text>".
func addPrompt(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, args string) (string, error) {
		title, text, ok := strings.Cut(args, "|")
		if !ok || strings.TrimSpace(title) == "" || strings.TrimSpace(text) == "" {
			return "", errUsage
		}
		p, err := deps.Service.CreatePrompt(ctx, title, text)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Prompt %d created: %s", p.ID, p.Title), nil
	}
}

func listPrompts(deps HandlerDeps) replyFunc {
	return func(ctx context.Context, _ string) (string, error) {
		prompts, err := deps.Service.ListPrompts(ctx)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(prompts))
		for _, p := range prompts {
			lines = append(lines, fmt.Sprintf("%d %s: %s", p.ID, p.Title, preview(p.Text, promptPreviewRunes)))
		}
		return strings.Join(lines, "\n"), nil
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
