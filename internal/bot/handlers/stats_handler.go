package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatsHandler returns a handler for the /stats command. It reports
// counters over the chat's not-yet-summarized messages.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")

	if update.Message == nil {
		log.WarnContext(ctx, "Stats handler received update with nil message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	stats, err := h.deps.Store.GetChatStats(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to get chat stats", "error", err, "chat_id", chatID)
		h.reply(ctx, b, chatID, "Could not load statistics, try again later.")
		return
	}

	text := fmt.Sprintf(
		"\U0001F4CA *Pending messages*\n\U0001F4AC Messages: %d\n\U0001F465 Senders: %d\n\U0001F4F7 With media: %d",
		stats.TotalMessages, stats.ActiveUsers, stats.MediaMessages)
	h.reply(ctx, b, chatID, text)
}

func (h statsHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send stats message", "error", err, "chat_id", chatID)
	}
}
