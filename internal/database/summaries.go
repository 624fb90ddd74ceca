package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// GetUnsummarizedMessages returns up to limit messages for the chat whose
// summarized watermark is still false, oldest first so summaries read
// chronologically. Sender names are joined in for transcript building.
func (s *sqlxStore) GetUnsummarizedMessages(ctx context.Context, chatID int64, limit int) ([]ChatLogEntry, error) {
	if chatID == 0 {
		return nil, ErrMissingChatID
	}
	if limit <= 0 {
		limit = 1000
	}

	var entries []ChatLogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT m.*, u.first_name AS sender_first_name, u.last_name AS sender_last_name
		FROM messages m
		JOIN users u ON u.user_id = m.user_id
		WHERE m.chat_id = ? AND m.summarized = 0
		ORDER BY m.date_ts ASC, m.internal_id ASC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsummarized messages for chat %d: %w", chatID, err)
	}
	return entries, nil
}

// MarkMessagesSummarized sets the summarized watermark for the given
// internal ids. Ids already retired are unaffected, so repeated calls
// with the same ids have no observable side effects.
func (s *sqlxStore) MarkMessagesSummarized(ctx context.Context, internalIDs []int64) error {
	if len(internalIDs) == 0 {
		return nil
	}

	return s.withTx(ctx, "mark_messages_summarized", func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In(`UPDATE messages SET summarized = 1 WHERE internal_id IN (?)`, internalIDs)
		if err != nil {
			return fmt.Errorf("failed to build watermark query: %w", err)
		}
		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to mark messages summarized: %w", err)
		}
		if affected, affErr := result.RowsAffected(); affErr == nil && int(affected) != len(internalIDs) {
			s.logger.DebugContext(ctx, "Watermark update affected fewer rows than requested",
				"requested", len(internalIDs), "affected", affected)
		}
		return nil
	})
}

// GetChatsForSummary returns active chats holding at least minMessages
// unsummarized messages, most backlog first.
func (s *sqlxStore) GetChatsForSummary(ctx context.Context, minMessages int) ([]Chat, error) {
	if minMessages < 1 {
		minMessages = 1
	}

	var chats []Chat
	err := s.db.SelectContext(ctx, &chats, `
		SELECT c.*
		FROM chats c
		JOIN messages m ON m.chat_id = c.chat_id AND m.summarized = 0
		WHERE c.is_active = 1
		GROUP BY c.chat_id
		HAVING COUNT(m.internal_id) >= ?
		ORDER BY COUNT(m.internal_id) DESC`, minMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to get chats for summary: %w", err)
	}
	return chats, nil
}

// GetChatStats aggregates counters over the chat's unsummarized messages
// for the summary header.
func (s *sqlxStore) GetChatStats(ctx context.Context, chatID int64) (*ChatStats, error) {
	if chatID == 0 {
		return nil, ErrMissingChatID
	}

	var stats ChatStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total_messages,
		       COUNT(DISTINCT user_id) AS active_users,
		       COALESCE(SUM(has_media), 0) AS media_messages
		FROM messages
		WHERE chat_id = ? AND summarized = 0`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for chat %d: %w", chatID, err)
	}
	return &stats, nil
}

// CreateSummary inserts a summary record and fills in its generated id.
func (s *sqlxStore) CreateSummary(ctx context.Context, summary *Summary) error {
	if summary == nil {
		return fmt.Errorf("cannot create nil summary")
	}
	if summary.ChatID == 0 {
		return ErrMissingChatID
	}
	if summary.CreatedTS.IsZero() {
		summary.CreatedTS = time.Now().UTC()
	}

	return s.withTx(ctx, "create_summary", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, `
			INSERT INTO summaries (chat_id, text, message_count,
				first_message_internal_id, last_message_internal_id,
				created_ts, published, published_ts)
			VALUES (:chat_id, :text, :message_count,
				:first_message_internal_id, :last_message_internal_id,
				:created_ts, :published, :published_ts)`, summary)
		if err != nil {
			return fmt.Errorf("failed to create summary for chat %d: %w", summary.ChatID, err)
		}
		if id, idErr := result.LastInsertId(); idErr == nil {
			summary.ID = id
		}
		s.logger.InfoContext(ctx, "Summary stored",
			"chat_id", summary.ChatID, "summary_id", summary.ID, "message_count", summary.MessageCount)
		return nil
	})
}

// MarkSummaryPublished flags a summary as delivered to the channel.
func (s *sqlxStore) MarkSummaryPublished(ctx context.Context, summaryID int64) error {
	return s.withTx(ctx, "mark_summary_published", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE summaries SET published = 1, published_ts = ? WHERE id = ?`,
			time.Now().UTC(), summaryID)
		if err != nil {
			return fmt.Errorf("failed to mark summary %d published: %w", summaryID, err)
		}
		return nil
	})
}
