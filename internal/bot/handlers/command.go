package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// errUsage asks the handler to reply with the command's usage text.
var errUsage = errors.New("usage")

// replyFunc runs a command with its arguments and returns the reply. A
// non-empty reply is sent even when err is set.
type replyFunc func(ctx context.Context, args string) (string, error)

// commandHandler adapts a replyFunc to a bot handler.
type commandHandler struct {
	deps  HandlerDeps
	name  string
	usage string
	slow  bool
	run   replyFunc
}

func newCommand(deps HandlerDeps, name, usage string, slow bool, run replyFunc) bot.HandlerFunc {
	return commandHandler{deps: deps, name: name, usage: usage, slow: slow, run: run}.Handle
}

func (h commandHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil {
		log.WarnContext(ctx, "Command handler received update without message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	if h.slow {
		send(ctx, b, log, chatID, h.deps.Config.Messages.Working)
		if h.deps.Typing != nil {
			stop := h.deps.Typing(ctx, chatID)
			defer stop()
		}
	}

	for _, text := range h.respond(ctx, update.Message.Text) {
		send(ctx, b, log, chatID, text)
	}
}

// respond runs the command and returns the messages to send.
func (h commandHandler) respond(ctx context.Context, text string) []string {
	log := h.deps.Logger.With("handler", h.name)
	reply, err := h.run(ctx, commandArgs(text))

	var out []string
	if reply != "" {
		out = append(out, reply)
	}
	switch {
	case errors.Is(err, errUsage):
		out = append(out, h.usage)
	case err != nil:
		log.ErrorContext(ctx, "Command failed", "error", err)
		out = append(out, errorText(err, h.deps.Config.Messages.GeneralError))
	}
	if len(out) == 0 {
		out = append(out, h.deps.Config.Messages.NothingToShow)
	}
	return out
}
