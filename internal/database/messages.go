package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// topicRootPrefix marks a message row as a synthesized topic-root
// placeholder. Placeholders are reconciled in place when genuine topic
// metadata arrives, so the prefix doubles as the "synthesized" tag.
const topicRootPrefix = "[Created topic:"

func topicRootText(name string) string {
	return fmt.Sprintf("%s %s]", topicRootPrefix, name)
}

func topicPlaceholderName(threadID int64) string {
	return fmt.Sprintf("Topic #%d", threadID)
}

// RecordMessage persists a new message event. The whole sequence (ensure
// chat and sender, resolve the reply chain, backfill the topic root,
// record forward provenance, insert) runs in one transaction. Duplicate
// delivery of the same (chat, message id) returns the existing row.
func (s *sqlxStore) RecordMessage(ctx context.Context, ev MessageEvent) (*Message, error) {
	if ev.Chat.ID == 0 {
		return nil, ErrMissingChatID
	}
	if ev.From.ID == 0 {
		return nil, ErrMissingUserID
	}
	if ev.MessageID == 0 {
		return nil, ErrMissingMessageID
	}

	var msg *Message
	err := s.withTx(ctx, "record_message", func(tx *sqlx.Tx) error {
		var txErr error
		msg, txErr = s.recordMessageTx(ctx, tx, ev)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *sqlxStore) recordMessageTx(ctx context.Context, tx *sqlx.Tx, ev MessageEvent) (*Message, error) {
	// Ensure chat and sender even for duplicates: activity timestamps
	// must refresh on every sighting.
	if _, err := ensureChatTx(ctx, tx, ev.Chat); err != nil {
		return nil, err
	}
	if _, err := ensureUserTx(ctx, tx, ev.From); err != nil {
		return nil, err
	}

	replyTo, err := s.resolveReplyTx(ctx, tx, ev)
	if err != nil {
		return nil, err
	}

	if err := s.backfillTopicRootTx(ctx, tx, ev); err != nil {
		return nil, err
	}

	msg := &Message{
		MessageID: ev.MessageID,
		ChatID:    ev.Chat.ID,
		UserID:    ev.From.ID,
		DateTS:    ev.Date.UTC(),

		ReplyToInternalID: replyTo,
	}
	if !ev.EditDate.IsZero() {
		msg.EditDateTS = sql.NullTime{Time: ev.EditDate.UTC(), Valid: true}
	}
	if ev.Text != "" {
		msg.Text = sql.NullString{String: ev.Text, Valid: true}
	}
	if ev.Caption != "" {
		msg.Caption = sql.NullString{String: ev.Caption, Valid: true}
	}
	if ev.Entities != "" {
		msg.Entities = sql.NullString{String: ev.Entities, Valid: true}
	}
	if ev.ThreadID != 0 {
		msg.MessageThreadID = sql.NullInt64{Int64: ev.ThreadID, Valid: true}
	}
	if ev.RawData != "" {
		msg.RawData = sql.NullString{String: ev.RawData, Valid: true}
	}

	// A directly observed topic root carries its creation metadata; store
	// it with the placeholder text so later references reconcile cleanly.
	if ev.TopicCreated != nil && ev.Text == "" && ev.Caption == "" {
		msg.Text = sql.NullString{String: topicRootText(ev.TopicCreated.Name), Valid: true}
		msg.MessageThreadID = sql.NullInt64{Int64: ev.MessageID, Valid: true}
	}

	if err := s.resolveForwardTx(ctx, tx, ev.Forward, msg); err != nil {
		return nil, err
	}

	if ev.Media != nil {
		msg.HasMedia = true
		msg.MediaType = sql.NullString{String: ev.Media.Type, Valid: true}
		if ev.Media.FileID != "" {
			msg.MediaFileID = sql.NullString{String: ev.Media.FileID, Valid: true}
		}
		if ev.Media.FileUniqueID != "" {
			msg.MediaFileUniqueID = sql.NullString{String: ev.Media.FileUniqueID, Valid: true}
		}
	}

	if err := insertMessageTx(ctx, tx, msg); err != nil {
		if isUniqueViolation(err) {
			// Duplicate delivery: creation is idempotent, not an update.
			s.logger.DebugContext(ctx, "Message already recorded",
				"chat_id", ev.Chat.ID, "message_id", ev.MessageID)
			return getMessageTx(tx, ev.Chat.ID, ev.MessageID)
		}
		return nil, err
	}
	return msg, nil
}

// resolveReplyTx maps the event's reply reference onto an internal id. A
// reply to a topic root that was never observed is satisfied by
// synthesizing the root; any other unresolvable target degrades to NULL.
func (s *sqlxStore) resolveReplyTx(ctx context.Context, tx *sqlx.Tx, ev MessageEvent) (sql.NullInt64, error) {
	var replyTo sql.NullInt64

	reply := ev.ReplyTo
	if reply == nil || reply.MessageID == 0 || reply.ChatID != ev.Chat.ID {
		return replyTo, nil
	}

	target, err := getMessageTx(tx, ev.Chat.ID, reply.MessageID)
	if err != nil {
		return replyTo, err
	}

	if target == nil && reply.TopicCreated != nil && ev.IsTopicMessage {
		creator := reply.From
		if creator == nil {
			creator = &ev.From
		}
		rootDate := reply.Date
		if rootDate.IsZero() {
			rootDate = ev.Date
		}
		target, err = s.ensureTopicRootTx(ctx, tx, ev.Chat.ID, reply.MessageID,
			*reply.TopicCreated, *creator, rootDate, reply.RawData)
		if err != nil {
			return replyTo, err
		}
	}

	if target != nil {
		replyTo = sql.NullInt64{Int64: target.InternalID, Valid: true}
	} else {
		s.logger.WarnContext(ctx, "Reply target not found, storing dangling reference as null",
			"chat_id", ev.Chat.ID, "message_id", ev.MessageID, "reply_to", reply.MessageID)
	}
	return replyTo, nil
}

// backfillTopicRootTx guarantees that every referenced thread id is
// back-referenceable: when a topic message arrives before its root was
// ever observed, a minimal virtual root is synthesized.
func (s *sqlxStore) backfillTopicRootTx(ctx context.Context, tx *sqlx.Tx, ev MessageEvent) error {
	if !ev.IsTopicMessage || ev.ThreadID == 0 || ev.ThreadID == ev.MessageID {
		return nil
	}

	root, err := getMessageTx(tx, ev.Chat.ID, ev.ThreadID)
	if err != nil {
		return err
	}
	if root != nil {
		return nil
	}

	// The true creator is unknown; attribute the placeholder to the
	// current sender at the current message's send time.
	topic := TopicCreated{Name: topicPlaceholderName(ev.ThreadID)}
	_, err = s.ensureTopicRootTx(ctx, tx, ev.Chat.ID, ev.ThreadID, topic, ev.From, ev.Date, "")
	return err
}

// ensureTopicRootTx creates or reconciles the topic-root message for
// (chat, threadID). An existing placeholder (empty text or topic-root
// prefix) is updated in place; a genuine user message is left untouched.
func (s *sqlxStore) ensureTopicRootTx(ctx context.Context, tx *sqlx.Tx, chatID, threadID int64,
	topic TopicCreated, creator UserInfo, ts time.Time, rawData string) (*Message, error) {

	text := topicRootText(topic.Name)

	existing, err := getMessageTx(tx, chatID, threadID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Text.Valid && existing.Text.String != "" &&
			!strings.HasPrefix(existing.Text.String, topicRootPrefix) {
			return existing, nil
		}
		raw := existing.RawData
		if rawData != "" && !raw.Valid {
			raw = sql.NullString{String: rawData, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE messages SET text = ?, message_thread_id = ?, raw_data = ?
			WHERE internal_id = ?`, text, threadID, raw, existing.InternalID)
		if err != nil {
			return nil, fmt.Errorf("failed to update topic root %d in chat %d: %w", threadID, chatID, err)
		}
		s.logger.InfoContext(ctx, "Topic root reconciled",
			"chat_id", chatID, "thread_id", threadID, "topic", topic.Name)
		return getMessageByInternalIDTx(tx, existing.InternalID)
	}

	if _, err := ensureUserTx(ctx, tx, creator); err != nil {
		return nil, err
	}

	root := &Message{
		MessageID: threadID,
		ChatID:    chatID,
		UserID:    creator.ID,
		DateTS:    ts.UTC(),
		Text:      sql.NullString{String: text, Valid: true},
		// The root of a topic threads to itself.
		MessageThreadID: sql.NullInt64{Int64: threadID, Valid: true},
	}
	if rawData != "" {
		root.RawData = sql.NullString{String: rawData, Valid: true}
	}

	if err := insertMessageTx(ctx, tx, root); err != nil {
		if isUniqueViolation(err) {
			// Lost a race against a concurrent synthesis: the winner is
			// equivalent, return it.
			return getMessageTx(tx, chatID, threadID)
		}
		return nil, fmt.Errorf("failed to insert topic root %d in chat %d: %w", threadID, chatID, err)
	}
	s.logger.InfoContext(ctx, "Virtual topic root synthesized",
		"chat_id", chatID, "thread_id", threadID, "topic", topic.Name)
	return root, nil
}

// resolveForwardTx records forward provenance. The forwarded message
// itself is not required to exist locally; only the origin entities are
// ensured.
func (s *sqlxStore) resolveForwardTx(ctx context.Context, tx *sqlx.Tx, fwd *ForwardRef, msg *Message) error {
	if fwd == nil {
		return nil
	}
	if fwd.FromUser != nil {
		user, err := ensureUserTx(ctx, tx, *fwd.FromUser)
		if err != nil {
			return err
		}
		msg.ForwardFromUserID = sql.NullInt64{Int64: user.UserID, Valid: true}
	}
	if fwd.FromChat != nil {
		chat, err := ensureChatTx(ctx, tx, *fwd.FromChat)
		if err != nil {
			return err
		}
		msg.ForwardFromChatID = sql.NullInt64{Int64: chat.ChatID, Valid: true}
	}
	if !fwd.Date.IsZero() {
		msg.ForwardDateTS = sql.NullTime{Time: fwd.Date.UTC(), Valid: true}
	}
	return nil
}

func insertMessageTx(ctx context.Context, tx *sqlx.Tx, msg *Message) error {
	result, err := tx.NamedExecContext(ctx, `
		INSERT INTO messages (message_id, chat_id, user_id, date_ts, edit_date_ts,
			text, caption, entities, reply_to_internal_id,
			forward_from_user_id, forward_from_chat_id, forward_date_ts,
			message_thread_id, has_media, media_type, media_file_id,
			media_file_unique_id, summarized, raw_data)
		VALUES (:message_id, :chat_id, :user_id, :date_ts, :edit_date_ts,
			:text, :caption, :entities, :reply_to_internal_id,
			:forward_from_user_id, :forward_from_chat_id, :forward_date_ts,
			:message_thread_id, :has_media, :media_type, :media_file_id,
			:media_file_unique_id, :summarized, :raw_data)`, msg)
	if err != nil {
		return err
	}
	if id, idErr := result.LastInsertId(); idErr == nil {
		msg.InternalID = id
	}
	return nil
}

// ApplyEdit updates a stored message from an edited-message event. Edits
// are last-writer-wins: only an edit timestamp strictly newer than the
// stored one is applied, so out-of-order delivery never regresses content.
// An edit for a message never seen falls back to recording it, since
// Telegram edit events carry the full message payload.
func (s *sqlxStore) ApplyEdit(ctx context.Context, ev MessageEvent) (*Message, error) {
	if ev.Chat.ID == 0 {
		return nil, ErrMissingChatID
	}
	if ev.MessageID == 0 {
		return nil, ErrMissingMessageID
	}
	if ev.EditDate.IsZero() {
		return nil, fmt.Errorf("edit event for message %d in chat %d has no edit date", ev.MessageID, ev.Chat.ID)
	}

	var msg *Message
	err := s.withTx(ctx, "apply_edit", func(tx *sqlx.Tx) error {
		existing, txErr := getMessageTx(tx, ev.Chat.ID, ev.MessageID)
		if txErr != nil {
			return txErr
		}
		if existing == nil {
			s.logger.InfoContext(ctx, "Edit for unknown message, recording as new",
				"chat_id", ev.Chat.ID, "message_id", ev.MessageID)
			msg, txErr = s.recordMessageTx(ctx, tx, ev)
			return txErr
		}

		edit := ev.EditDate.UTC()
		if existing.EditDateTS.Valid && !edit.After(existing.EditDateTS.Time) {
			msg = existing
			return nil
		}

		if ev.Text != "" {
			existing.Text = sql.NullString{String: ev.Text, Valid: true}
		}
		if ev.Caption != "" {
			existing.Caption = sql.NullString{String: ev.Caption, Valid: true}
		}
		if ev.Entities != "" {
			existing.Entities = sql.NullString{String: ev.Entities, Valid: true}
		}
		if ev.RawData != "" {
			existing.RawData = sql.NullString{String: ev.RawData, Valid: true}
		}
		existing.EditDateTS = sql.NullTime{Time: edit, Valid: true}

		_, txErr = tx.NamedExecContext(ctx, `
			UPDATE messages SET
				text = :text,
				caption = :caption,
				entities = :entities,
				edit_date_ts = :edit_date_ts,
				raw_data = :raw_data
			WHERE internal_id = :internal_id`, existing)
		if txErr != nil {
			return fmt.Errorf("failed to apply edit to message %d in chat %d: %w", ev.MessageID, ev.Chat.ID, txErr)
		}
		msg = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
