package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewSummarizeHandler returns a handler for the /summarize command, which
// runs the summary pipeline for the current chat immediately.
func NewSummarizeHandler(deps HandlerDeps) bot.HandlerFunc {
	return summarizeHandler{deps}.Handle
}

type summarizeHandler struct {
	deps HandlerDeps
}

func (h summarizeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "summarize")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Summarize handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	log.InfoContext(ctx, "Handling /summarize command", "chat_id", chatID, "user_id", update.Message.From.ID)

	chat, err := h.deps.Store.EnsureChat(ctx, chatInfoFromModel(update.Message.Chat))
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat", "error", err, "chat_id", chatID)
		h.reply(ctx, b, chatID, "Could not create a summary, try again later.")
		return
	}

	h.reply(ctx, b, chatID, "Creating a summary, this can take a moment...")

	if err := h.deps.Summary.RunChat(ctx, chat); err != nil {
		log.ErrorContext(ctx, "Manual summary failed", "error", err, "chat_id", chatID)
		h.reply(ctx, b, chatID, "Could not create a summary, try again later.")
		return
	}

	h.reply(ctx, b, chatID, "Summary created and published to the channel.")
}

func (h summarizeHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}
