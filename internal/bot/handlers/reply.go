package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chanwatch/internal/apperr"
)

// maxReplyRunes keeps replies under the Bot API limit of 4096 characters.
const maxReplyRunes = 4000

const (
	defaultWindowHours = 24
	maxWindowHours     = 24 * 90
)

// Sender is the message sending part of *bot.Bot.
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

func send(ctx context.Context, b Sender, log *slog.Logger, chatID int64, text string) {
	for _, part := range splitText(text, maxReplyRunes) {
		if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: part}); err != nil {
			log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
			return
		}
	}
}

// splitText cuts text into parts of at most limit runes, preferring line
// breaks.
func splitText(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, text)
	}
	return parts
}

func byteOffset(s string, runes int) int {
	n := 0
	for i := range s {
		if n == runes {
			return i
		}
		n++
	}
	return len(s)
}

// errorText turns an error into a short reply.
func errorText(err error, fallback string) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "Not found: " + apperr.Reason(err)
	case apperr.KindInvalidInput:
		return "Invalid input: " + apperr.Reason(err)
	case apperr.KindExternalLookup:
		return "Lookup failed: " + apperr.Reason(err)
	case apperr.KindModel:
		return "Model error: " + apperr.Reason(err)
	case apperr.KindPersistence:
		return "Storage error: " + apperr.Reason(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The operation timed out."
	}
	return fallback
}

// commandArgs returns everything after the command token.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		return strings.TrimSpace(text[i:])
	}
	return ""
}

// parseIDs reads ids separated by spaces or commas.
func parseIDs(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, apperr.InvalidInput("invalid id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseHours reads an optional window length in hours.
func parseHours(s string) (time.Duration, error) {
	if s == "" {
		return defaultWindowHours * time.Hour, nil
	}
	h, err := strconv.Atoi(s)
	if err != nil || h <= 0 || h > maxWindowHours {
		return 0, apperr.InvalidInput("hours must be between 1 and %d", maxWindowHours)
	}
	return time.Duration(h) * time.Hour, nil
}
