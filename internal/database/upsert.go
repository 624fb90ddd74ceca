package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// The merge rules are additive: a present (non-zero) incoming value
// overwrites the stored one, an absent value never erases it. Observing
// any event about a chat also implies the chat is currently reachable,
// so ensure always refreshes last-activity and forces it active.

func newChatRow(info ChatInfo, now time.Time) *Chat {
	chat := &Chat{
		ChatID:         info.ID,
		FirstSeenTS:    now,
		LastActivityTS: now,
		IsActive:       true,
	}
	mergeChatRow(chat, info, now)
	return chat
}

func mergeChatRow(chat *Chat, info ChatInfo, now time.Time) {
	if info.Type != "" {
		chat.Type = sql.NullString{String: info.Type, Valid: true}
	}
	if info.Title != "" {
		chat.Title = sql.NullString{String: info.Title, Valid: true}
	}
	if info.Description != "" {
		chat.Description = sql.NullString{String: info.Description, Valid: true}
	}
	if info.MemberCount > 0 {
		chat.MemberCount = sql.NullInt64{Int64: int64(info.MemberCount), Valid: true}
	}
	if info.RawData != "" {
		chat.RawData = sql.NullString{String: info.RawData, Valid: true}
	}
	chat.LastActivityTS = now
	chat.IsActive = true
}

func newUserRow(info UserInfo, now time.Time) *User {
	user := &User{
		UserID:      info.ID,
		FirstSeenTS: now,
		LastSeenTS:  now,
	}
	mergeUserRow(user, info, now)
	return user
}

func mergeUserRow(user *User, info UserInfo, now time.Time) {
	if info.Username != "" {
		user.Username = sql.NullString{String: info.Username, Valid: true}
	}
	if info.FirstName != "" {
		user.FirstName = sql.NullString{String: info.FirstName, Valid: true}
	}
	if info.LastName != "" {
		user.LastName = sql.NullString{String: info.LastName, Valid: true}
	}
	if info.LanguageCode != "" {
		user.LanguageCode = sql.NullString{String: info.LanguageCode, Valid: true}
	}
	// Telegram omits is_premium when false, so a set flag only ever
	// upgrades the stored value.
	if info.IsPremium {
		user.IsPremium = sql.NullBool{Bool: true, Valid: true}
	}
	if info.RawData != "" {
		user.RawData = sql.NullString{String: info.RawData, Valid: true}
	}
	user.IsBot = info.IsBot
	user.LastSeenTS = now
}

// ensureChatTx gets or creates a chat inside the caller's transaction.
// Losing an insert race is treated as success: the winner is re-read.
func ensureChatTx(ctx context.Context, tx *sqlx.Tx, info ChatInfo) (*Chat, error) {
	if info.ID == 0 {
		return nil, ErrMissingChatID
	}

	now := time.Now().UTC()
	chat, err := getChatTx(tx, info.ID)
	if err != nil {
		return nil, err
	}

	if chat != nil {
		mergeChatRow(chat, info, now)
		_, err := tx.NamedExecContext(ctx, `
			UPDATE chats SET
				type = :type,
				title = :title,
				description = :description,
				member_count = :member_count,
				last_activity_ts = :last_activity_ts,
				is_active = :is_active,
				raw_data = :raw_data
			WHERE chat_id = :chat_id`, chat)
		if err != nil {
			return nil, fmt.Errorf("failed to update chat %d: %w", info.ID, err)
		}
		return chat, nil
	}

	chat = newChatRow(info, now)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO chats (chat_id, type, title, description, member_count,
			first_seen_ts, last_activity_ts, is_active, raw_data)
		VALUES (:chat_id, :type, :title, :description, :member_count,
			:first_seen_ts, :last_activity_ts, :is_active, :raw_data)`, chat)
	if err != nil {
		if isUniqueViolation(err) {
			return getChatTx(tx, info.ID)
		}
		return nil, fmt.Errorf("failed to insert chat %d: %w", info.ID, err)
	}
	return chat, nil
}

// ensureUserTx gets or creates a user inside the caller's transaction.
func ensureUserTx(ctx context.Context, tx *sqlx.Tx, info UserInfo) (*User, error) {
	if info.ID == 0 {
		return nil, ErrMissingUserID
	}

	now := time.Now().UTC()
	user, err := getUserTx(tx, info.ID)
	if err != nil {
		return nil, err
	}

	if user != nil {
		mergeUserRow(user, info, now)
		_, err := tx.NamedExecContext(ctx, `
			UPDATE users SET
				username = :username,
				first_name = :first_name,
				last_name = :last_name,
				is_bot = :is_bot,
				is_premium = :is_premium,
				language_code = :language_code,
				last_seen_ts = :last_seen_ts,
				raw_data = :raw_data
			WHERE user_id = :user_id`, user)
		if err != nil {
			return nil, fmt.Errorf("failed to update user %d: %w", info.ID, err)
		}
		return user, nil
	}

	user = newUserRow(info, now)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, is_bot,
			is_premium, language_code, first_seen_ts, last_seen_ts, raw_data)
		VALUES (:user_id, :username, :first_name, :last_name, :is_bot,
			:is_premium, :language_code, :first_seen_ts, :last_seen_ts, :raw_data)`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return getUserTx(tx, info.ID)
		}
		return nil, fmt.Errorf("failed to insert user %d: %w", info.ID, err)
	}
	return user, nil
}

func (s *sqlxStore) EnsureChat(ctx context.Context, info ChatInfo) (*Chat, error) {
	var chat *Chat
	err := s.withTx(ctx, "ensure_chat", func(tx *sqlx.Tx) error {
		var txErr error
		chat, txErr = ensureChatTx(ctx, tx, info)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *sqlxStore) EnsureUser(ctx context.Context, info UserInfo) (*User, error) {
	var user *User
	err := s.withTx(ctx, "ensure_user", func(tx *sqlx.Tx) error {
		var txErr error
		user, txErr = ensureUserTx(ctx, tx, info)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *sqlxStore) DeactivateChat(ctx context.Context, chatID int64) error {
	err := s.withTx(ctx, "deactivate_chat", func(tx *sqlx.Tx) error {
		result, txErr := tx.ExecContext(ctx, `UPDATE chats SET is_active = 0 WHERE chat_id = ?`, chatID)
		if txErr != nil {
			return fmt.Errorf("failed to deactivate chat %d: %w", chatID, txErr)
		}
		if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
			s.logger.DebugContext(ctx, "Deactivate requested for unknown chat", "chat_id", chatID)
		}
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Chat deactivated", "chat_id", chatID)
	}
	return err
}
