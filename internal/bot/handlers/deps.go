package handlers

import (
	"log/slog"

	"github.com/edgard/resumobot/internal/bot/tasks"
	"github.com/edgard/resumobot/internal/config"
	"github.com/edgard/resumobot/internal/database"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Store   database.Store
	Summary *tasks.SummaryService
}
