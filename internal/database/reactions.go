package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ApplyReactionSnapshot reconciles the stored reactions for one
// (message, user) pair against an incoming snapshot. Only the minimal
// set difference is applied: emojis present in both sets are untouched.
// Deletions and insertions commit atomically. Reactions cannot create
// messages; a snapshot for an unknown message is dropped with a warning.
func (s *sqlxStore) ApplyReactionSnapshot(ctx context.Context, ev ReactionEvent) error {
	if ev.Chat.ID == 0 {
		return ErrMissingChatID
	}
	if ev.User.ID == 0 {
		return ErrMissingUserID
	}
	if ev.MessageID == 0 {
		return ErrMissingMessageID
	}

	return s.withTx(ctx, "apply_reaction_snapshot", func(tx *sqlx.Tx) error {
		msg, err := getMessageTx(tx, ev.Chat.ID, ev.MessageID)
		if err != nil {
			return err
		}
		if msg == nil {
			s.logger.WarnContext(ctx, "Reaction snapshot for unknown message, skipping",
				"chat_id", ev.Chat.ID, "message_id", ev.MessageID, "user_id", ev.User.ID)
			return nil
		}

		if _, err := ensureUserTx(ctx, tx, ev.User); err != nil {
			return err
		}

		toRemove, toAdd := diffEmojiSets(ev.Old, ev.New)
		if len(toRemove) == 0 && len(toAdd) == 0 {
			return nil
		}

		if len(toRemove) > 0 {
			query, args, err := sqlx.In(
				`DELETE FROM reactions WHERE internal_message_id = ? AND user_id = ? AND emoji IN (?)`,
				msg.InternalID, ev.User.ID, toRemove)
			if err != nil {
				return fmt.Errorf("failed to build reaction delete query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to delete reactions for message %d: %w", msg.InternalID, err)
			}
		}

		now := time.Now().UTC()
		for _, emoji := range toAdd {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO reactions (internal_message_id, user_id, emoji, added_ts)
				VALUES (?, ?, ?, ?)`, msg.InternalID, ev.User.ID, emoji, now)
			if err != nil {
				if isUniqueViolation(err) {
					// Duplicate snapshot delivery already inserted this one.
					continue
				}
				return fmt.Errorf("failed to insert reaction %q for message %d: %w", emoji, msg.InternalID, err)
			}
		}

		s.logger.DebugContext(ctx, "Reaction snapshot applied",
			"chat_id", ev.Chat.ID, "message_id", ev.MessageID, "user_id", ev.User.ID,
			"removed", len(toRemove), "added", len(toAdd))
		return nil
	})
}

// diffEmojiSets computes removed = old − updated and added = updated − old
// as set differences, preserving first-seen order for deterministic
// application.
func diffEmojiSets(old, updated []string) (toRemove, toAdd []string) {
	oldSet := make(map[string]struct{}, len(old))
	for _, e := range old {
		oldSet[e] = struct{}{}
	}
	updatedSet := make(map[string]struct{}, len(updated))
	for _, e := range updated {
		updatedSet[e] = struct{}{}
	}

	seen := make(map[string]struct{}, len(old))
	for _, e := range old {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if _, ok := updatedSet[e]; !ok {
			toRemove = append(toRemove, e)
		}
	}
	seen = make(map[string]struct{}, len(updated))
	for _, e := range updated {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if _, ok := oldSet[e]; !ok {
			toAdd = append(toAdd, e)
		}
	}
	return toRemove, toAdd
}
