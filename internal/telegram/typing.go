package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultTypingInterval is how often the typing action is repeated. Telegram
// shows it for about five seconds.
const DefaultTypingInterval = 4 * time.Second

// ChatActionAPI sends chat actions. *bot.Bot implements it.
type ChatActionAPI interface {
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// StartTyping shows the typing indicator in chatID until the returned stop
// function is called or ctx is done. stop waits for the loop to exit.
func StartTyping(ctx context.Context, api ChatActionAPI, log *slog.Logger, chatID int64, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	send := func() {
		if _, err := api.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil && ctx.Err() == nil {
			log.DebugContext(ctx, "Typing action failed", "chat_id", chatID, "error", err)
		}
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		send()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
