package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewCollectorHandler returns the default handler that feeds every
// non-command update into the store: new messages, edits, reaction
// changes, and the bot's own membership changes.
func NewCollectorHandler(deps HandlerDeps) bot.HandlerFunc {
	return collectorHandler{deps}.Handle
}

type collectorHandler struct {
	deps HandlerDeps
}

func (h collectorHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		h.handleEdit(ctx, update.EditedMessage)
	case update.MessageReaction != nil:
		h.handleReaction(ctx, update.MessageReaction)
	case update.MyChatMember != nil:
		h.handleMembership(ctx, update.MyChatMember)
	default:
		h.deps.Logger.DebugContext(ctx, "Ignoring unsupported update", "update_id", update.ID)
	}
}

func (h collectorHandler) handleMessage(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "collector")

	if msg.From == nil {
		log.DebugContext(ctx, "Skipping message without sender",
			"chat_id", msg.Chat.ID, "message_id", msg.ID)
		return
	}

	if _, err := h.deps.Store.RecordMessage(ctx, messageEventFromModel(msg)); err != nil {
		log.ErrorContext(ctx, "Failed to record message",
			"error", err, "chat_id", msg.Chat.ID, "message_id", msg.ID)
	}
}

func (h collectorHandler) handleEdit(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "collector")

	if msg.From == nil {
		log.DebugContext(ctx, "Skipping edit without sender",
			"chat_id", msg.Chat.ID, "message_id", msg.ID)
		return
	}

	if _, err := h.deps.Store.ApplyEdit(ctx, messageEventFromModel(msg)); err != nil {
		log.ErrorContext(ctx, "Failed to apply edit",
			"error", err, "chat_id", msg.Chat.ID, "message_id", msg.ID)
	}
}

func (h collectorHandler) handleReaction(ctx context.Context, upd *models.MessageReactionUpdated) {
	log := h.deps.Logger.With("handler", "collector")

	// Anonymous reactions arrive with an actor chat instead of a user and
	// cannot be attributed.
	if upd.User == nil {
		log.DebugContext(ctx, "Skipping anonymous reaction",
			"chat_id", upd.Chat.ID, "message_id", upd.MessageID)
		return
	}

	if err := h.deps.Store.ApplyReactionSnapshot(ctx, reactionEventFromModel(upd)); err != nil {
		log.ErrorContext(ctx, "Failed to apply reaction snapshot",
			"error", err, "chat_id", upd.Chat.ID, "message_id", upd.MessageID)
	}
}

func (h collectorHandler) handleMembership(ctx context.Context, upd *models.ChatMemberUpdated) {
	log := h.deps.Logger.With("handler", "collector")

	switch upd.NewChatMember.Type {
	case models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
		log.InfoContext(ctx, "Bot removed from chat", "chat_id", upd.Chat.ID)
		if err := h.deps.Store.DeactivateChat(ctx, upd.Chat.ID); err != nil {
			log.ErrorContext(ctx, "Failed to deactivate chat", "error", err, "chat_id", upd.Chat.ID)
		}
	default:
		log.InfoContext(ctx, "Bot membership updated", "chat_id", upd.Chat.ID)
		if _, err := h.deps.Store.EnsureChat(ctx, chatInfoFromModel(upd.Chat)); err != nil {
			log.ErrorContext(ctx, "Failed to register chat", "error", err, "chat_id", upd.Chat.ID)
		}
	}
}
