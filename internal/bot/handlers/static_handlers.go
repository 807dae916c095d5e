package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return staticHandler{deps: deps, name: "start", text: deps.Config.Messages.Welcome}.Handle
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return staticHandler{deps: deps, name: "help", text: deps.Config.Messages.Help}.Handle
}

// staticHandler replies with a fixed text in which "@botname" is replaced
// by the bot's handle.
type staticHandler struct {
	deps HandlerDeps
	name string
	text string
}

func (h staticHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)
	if update.Message == nil {
		return
	}
	log.InfoContext(ctx, "Handling command", "command", h.name, "chat_id", update.Message.Chat.ID)
	send(ctx, b, log, update.Message.Chat.ID, h.reply())
}

func (h staticHandler) reply() string {
	if info := h.deps.Config.Telegram.BotInfo; info != nil && info.Username != "" {
		return strings.ReplaceAll(h.text, "@botname", "@"+info.Username)
	}
	return h.text
}
