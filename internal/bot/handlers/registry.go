package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler is a command handler with the middleware and the
// description published in the bot's command menu.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	Description string
}

// RegisterAllCommands returns every command keyed by "/name".
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)
	m := deps.Config.Messages

	command := func(name, description string, h tgbot.HandlerFunc, mw []tgbot.Middleware) {
		handlers["/"+name] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     name,
			Handler:     h,
			Middleware:  mw,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Description: description,
		}
	}

	command("start", "Show the welcome message", NewStartHandler(deps), nil)
	command("help", "List commands", NewHelpHandler(deps), nil)

	admin := []tgbot.Middleware{AdminOnly(deps)}

	command("add", "Track a channel", newCommand(deps, "add", m.UsageAdd, false, addChannel(deps)), admin)
	command("import", "Track every chat the bot has seen", newCommand(deps, "import", "", false, importDialogs(deps)), admin)
	command("channels", "List tracked channels", newCommand(deps, "channels", "", false, listChannels(deps)), admin)
	command("info", "Show channel details", newCommand(deps, "info", m.UsageInfo, false, channelInfo(deps)), admin)
	command("remove", "Stop tracking channels", newCommand(deps, "remove", m.UsageRemove, false, removeChannel(deps)), admin)
	command("monitor", "Monitor new messages with a prompt", newCommand(deps, "monitor", m.UsageMonitor, false, monitorChannels(deps)), admin)
	command("unmonitor", "Stop monitoring channels", newCommand(deps, "unmonitor", m.UsageMonitor, false, unmonitorChannels(deps)), admin)
	command("refresh", "Refresh the message cache", newCommand(deps, "refresh", "", true, refreshMessages(deps)), admin)
	command("analyze", "Analyze channels with a prompt", newCommand(deps, "analyze", m.UsageAnalyze, true, analyzeChannels(deps)), admin)
	command("prompt_add", "Add a prompt", newCommand(deps, "prompt_add", m.UsagePromptAdd, false, addPrompt(deps)), admin)
	command("prompts", "List prompts", newCommand(deps, "prompts", "", false, listPrompts(deps)), admin)
	command("users", "List known users", newCommand(deps, "users", "", false, listUsers(deps)), admin)
	command("profiles", "Refresh user profiles", newCommand(deps, "profiles", m.UsageProfiles, true, refreshProfiles(deps)), admin)

	return handlers
}
