// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/resumobot/internal/bot"
	"github.com/edgard/resumobot/internal/bot/handlers"
	"github.com/edgard/resumobot/internal/bot/tasks"
	"github.com/edgard/resumobot/internal/config"
	"github.com/edgard/resumobot/internal/database"
	"github.com/edgard/resumobot/internal/logger"
	"github.com/edgard/resumobot/internal/summarizer"
	"github.com/edgard/resumobot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// db, summarizer, bot, scheduler), handles graceful shutdown, and returns
// an exit code.
func run(ctx context.Context) int {
	configDir := flag.String("config", ".", "Directory holding config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		slog.Error("Failed to load configuration", "dir", *configDir, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	sumClient, err := summarizer.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize summarizer", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewCollectorHandler(hDeps)),
		tgbot.WithAllowedUpdates(tgbot.AllowedUpdates{
			"message", "edited_message", "message_reaction", "my_chat_member",
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	tDeps := tasks.TaskDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Summarizer: sumClient,
		TG:         tg,
	}
	summarySvc := tasks.NewSummaryService(tDeps)
	hDeps.Summary = summarySvc

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched, err := bot.NewScheduler(log, tasks.RegisterAllTasks(tDeps, summarySvc))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, cfg, db, store, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
