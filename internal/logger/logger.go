// Package logger builds the process logger and the update logging
// middleware for the Telegram bot.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewLogger creates the process logger writing to stdout and installs it as
// the slog default. jsonOutput selects the JSON handler over text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := New(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(logger)
	return logger
}

// New creates a logger writing to w.
func New(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware logs every update before and after its handler runs.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			logEntry := log.With(append([]any{"update_id", update.ID}, updateAttrs(update)...)...)

			logEntry.DebugContext(ctx, "Processing update")
			next(ctx, b, update)
			logEntry.DebugContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func updateAttrs(update *models.Update) []any {
	var (
		kind string
		msg  *models.Message
	)
	switch {
	case update.Message != nil:
		kind, msg = "message", update.Message
	case update.EditedMessage != nil:
		kind, msg = "edited_message", update.EditedMessage
	case update.ChannelPost != nil:
		kind, msg = "channel_post", update.ChannelPost
	case update.EditedChannelPost != nil:
		kind, msg = "edited_channel_post", update.EditedChannelPost
	case update.CallbackQuery != nil:
		return []any{"update_type", "callback_query", "user_id", update.CallbackQuery.From.ID, "data", update.CallbackQuery.Data}
	default:
		return []any{"update_type", "other"}
	}

	attrs := []any{"update_type", kind, "message_id", msg.ID, "chat_id", msg.Chat.ID}
	if msg.From != nil {
		attrs = append(attrs, "user_id", msg.From.ID)
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return append(attrs, "text_preview", truncateString(text, 50))
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
