package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcd...", truncateString("abcdefghij", 7))
	assert.Equal(t, "...", truncateString("abcdefghij", 2))
	assert.Equal(t, "привет...", truncateString("привет мир!", 9))
}

func TestMiddlewareLogsUpdate(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, "debug", true)

	called := false
	handler := Middleware(log)(func(ctx context.Context, _ *bot.Bot, _ *models.Update) { called = true })
	handler(context.Background(), nil, &models.Update{
		ID: 9,
		ChannelPost: &models.Message{
			ID:   3,
			Chat: models.Chat{ID: -1001, Type: models.ChatTypeChannel},
			Text: "breaking news",
		},
	})
	require.True(t, called)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "channel_post", entry["update_type"])
	assert.EqualValues(t, -1001, entry["chat_id"])
	assert.Equal(t, "breaking news", entry["text_preview"])
}
