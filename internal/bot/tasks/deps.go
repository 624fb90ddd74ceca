// Package tasks implements scheduled tasks for the ResumoBot Telegram bot,
// including the summary pipeline and database maintenance.
package tasks

import (
	"log/slog"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/resumobot/internal/config"
	"github.com/edgard/resumobot/internal/database"
	"github.com/edgard/resumobot/internal/summarizer"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Summarizer summarizer.Summarizer
	TG         *tgbot.Bot
}
