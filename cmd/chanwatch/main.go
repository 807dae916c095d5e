// Command chanwatch runs the channel watcher bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chanwatch/internal/bot"
	"github.com/edgard/chanwatch/internal/bot/handlers"
	"github.com/edgard/chanwatch/internal/bot/tasks"
	"github.com/edgard/chanwatch/internal/config"
	"github.com/edgard/chanwatch/internal/database"
	"github.com/edgard/chanwatch/internal/gemini"
	"github.com/edgard/chanwatch/internal/logger"
	"github.com/edgard/chanwatch/internal/mediator"
	"github.com/edgard/chanwatch/internal/monitoring"
	"github.com/edgard/chanwatch/internal/resilience"
	"github.com/edgard/chanwatch/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component and blocks until shutdown. It returns the
// process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gem, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}
	model := gemini.WithBreaker(gem, resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "gemini",
		MaxFailures: cfg.Gemini.BreakerFailures,
		Cooldown:    cfg.Gemini.BreakerCooldown,
	}, log))

	// The platform client needs the bot for lookups and the bot needs the
	// client as its default handler.
	var client *telegram.Client
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			client.HandleUpdate(ctx, b, update)
		}),
	)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}
	client = telegram.NewClient(tg, log, cfg.Telegram.HistorySize)

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	svc := mediator.NewService(store, client, model, log, mediator.Options{
		MaxChunkBytes:      cfg.Analysis.MaxChunkBytes,
		ReplyIterationCap:  cfg.Analysis.ReplyIterationCap,
		ProfileConcurrency: cfg.Profiles.RefreshConcurrency,
	})

	var monitor *monitoring.Pipeline
	if cfg.Monitoring.Enabled {
		monitor = monitoring.New(store, model, svc, log, monitoring.Options{
			UsersLimit:      cfg.Monitoring.UsersLimit,
			DefaultChannels: cfg.Telegram.DefaultChannels,
			DefaultPromptID: cfg.Monitoring.PromptID,
		})
		client.Subscribe(monitor.HandleEvent)
		log.Info("Monitoring enabled", "default_channels", monitor.Bootstrap(ctx))
	}

	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Service: svc,
		Typing: func(ctx context.Context, chatID int64) func() {
			return telegram.StartTyping(ctx, tg, log, chatID, telegram.DefaultTypingInterval)
		},
	}
	cmds := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmds); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.PublishCommands(ctx, tg, cmds); err != nil {
		log.Warn("Failed to publish bot commands", "error", err)
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Service: svc,
		Config:  cfg,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var closer bot.Closer
	if monitor != nil {
		closer = monitor
	}
	app := bot.NewBot(log, tg, sched, closer)

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Bot stopped due to error", "error", err)
		return 1
	}
	log.Info("Bot stopped gracefully")
	return 0
}
