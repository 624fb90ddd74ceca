package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for malformed events. Handlers log these and drop the
// event; they never terminate the process.
var (
	ErrMissingChatID    = errors.New("event has no chat id")
	ErrMissingUserID    = errors.New("event has no user id")
	ErrMissingMessageID = errors.New("event has no message id")
)

const (
	// Transient storage failures (SQLITE_BUSY/LOCKED) are retried with a
	// fixed delay before the error is surfaced to the caller.
	txMaxAttempts = 3
	txRetryDelay  = 100 * time.Millisecond
)

// Store is the ingestion and reconciliation engine. Every method runs its
// reads and writes inside a single transaction, so a failure leaves either
// the pre-state or the fully-applied post-state. Methods are safe to call
// from concurrent event handlers; read-then-write races on the same entity
// are resolved by catching the uniqueness violation and re-reading.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// EnsureChat gets or creates the chat, additively merging attributes,
	// refreshing last-activity, and forcing it active.
	EnsureChat(ctx context.Context, info ChatInfo) (*Chat, error)

	// EnsureUser gets or creates the user, additively merging attributes
	// and refreshing last-seen.
	EnsureUser(ctx context.Context, info UserInfo) (*User, error)

	// DeactivateChat marks the chat inactive. No-op if the chat is unknown.
	DeactivateChat(ctx context.Context, chatID int64) error

	// RecordMessage persists a new message, resolving reply targets,
	// synthesizing virtual topic roots, and recording forward provenance.
	// Duplicate delivery returns the existing row unchanged.
	RecordMessage(ctx context.Context, ev MessageEvent) (*Message, error)

	// ApplyEdit updates a stored message if the incoming edit timestamp is
	// strictly newer than the stored one; otherwise it is a no-op.
	ApplyEdit(ctx context.Context, ev MessageEvent) (*Message, error)

	// ApplyReactionSnapshot diffs the old and new emoji sets for one
	// (message, user) pair and applies the minimal insert/delete set.
	ApplyReactionSnapshot(ctx context.Context, ev ReactionEvent) error

	// GetChat returns the chat, or nil if unknown.
	GetChat(ctx context.Context, chatID int64) (*Chat, error)

	// GetUser returns the user, or nil if unknown.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// GetMessage returns the message by (chat, Telegram message id), or nil.
	GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error)

	// GetReactions returns all reactions stored for a message.
	GetReactions(ctx context.Context, internalMessageID int64) ([]Reaction, error)

	// GetUnsummarizedMessages returns up to limit not-yet-summarized
	// messages for the chat, oldest first, joined with sender names.
	GetUnsummarizedMessages(ctx context.Context, chatID int64, limit int) ([]ChatLogEntry, error)

	// MarkMessagesSummarized sets the summarized watermark for the given
	// internal ids. Idempotent; no-op on an empty list.
	MarkMessagesSummarized(ctx context.Context, internalIDs []int64) error

	// GetChatsForSummary returns active chats holding at least minMessages
	// unsummarized messages.
	GetChatsForSummary(ctx context.Context, minMessages int) ([]Chat, error)

	// GetChatStats aggregates counters over the chat's unsummarized messages.
	GetChatStats(ctx context.Context, chatID int64) (*ChatStats, error)

	// CreateSummary inserts a summary record and fills in its generated id.
	CreateSummary(ctx context.Context, summary *Summary) error

	// MarkSummaryPublished flags a summary as delivered.
	MarkSummaryPublished(ctx context.Context, summaryID int64) error

	// RunMaintenance reclaims space and refreshes query planner statistics.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store on top of sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, retrying the whole transaction on
// transient SQLite errors. Retries wrap only the transaction boundary.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		lastErr = s.runTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}
		s.logger.WarnContext(ctx, "Transient database error, retrying",
			"operation", op, "attempt", attempt, "max_attempts", txMaxAttempts, "error", lastErr)
		select {
		case <-time.After(txRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.logger.ErrorContext(ctx, "Database operation failed after retries",
		"operation", op, "attempts", txMaxAttempts, "error", lastErr)
	return lastErr
}

func (s *sqlxStore) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.Warn("Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness-constraint
// failure. These are benign here: a concurrent handler won the insert race
// and the caller re-reads the winning row.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isBusy reports whether err is a transient locking error worth retrying.
func isBusy(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// Tx-scoped lookups shared by the reconciliation operations.

func getChatTx(tx *sqlx.Tx, chatID int64) (*Chat, error) {
	var chat Chat
	err := tx.Get(&chat, `SELECT * FROM chats WHERE chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %d: %w", chatID, err)
	}
	return &chat, nil
}

func getUserTx(tx *sqlx.Tx, userID int64) (*User, error) {
	var user User
	err := tx.Get(&user, `SELECT * FROM users WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return &user, nil
}

func getMessageTx(tx *sqlx.Tx, chatID, messageID int64) (*Message, error) {
	var msg Message
	err := tx.Get(&msg, `SELECT * FROM messages WHERE chat_id = ? AND message_id = ?`, chatID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d in chat %d: %w", messageID, chatID, err)
	}
	return &msg, nil
}

func getMessageByInternalIDTx(tx *sqlx.Tx, internalID int64) (*Message, error) {
	var msg Message
	err := tx.Get(&msg, `SELECT * FROM messages WHERE internal_id = ?`, internalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by internal id %d: %w", internalID, err)
	}
	return &msg, nil
}

func (s *sqlxStore) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat *Chat
	err := s.withTx(ctx, "get_chat", func(tx *sqlx.Tx) error {
		var txErr error
		chat, txErr = getChatTx(tx, chatID)
		return txErr
	})
	return chat, err
}

func (s *sqlxStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user *User
	err := s.withTx(ctx, "get_user", func(tx *sqlx.Tx) error {
		var txErr error
		user, txErr = getUserTx(tx, userID)
		return txErr
	})
	return user, err
}

func (s *sqlxStore) GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	var msg *Message
	err := s.withTx(ctx, "get_message", func(tx *sqlx.Tx) error {
		var txErr error
		msg, txErr = getMessageTx(tx, chatID, messageID)
		return txErr
	})
	return msg, err
}

// RunMaintenance executes VACUUM and ANALYZE. SQLite requires VACUUM to
// run outside a transaction, so this bypasses withTx.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance")
	start := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(start))
	return nil
}

func (s *sqlxStore) GetReactions(ctx context.Context, internalMessageID int64) ([]Reaction, error) {
	var reactions []Reaction
	err := s.db.SelectContext(ctx, &reactions,
		`SELECT * FROM reactions WHERE internal_message_id = ? ORDER BY emoji`, internalMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reactions for message %d: %w", internalMessageID, err)
	}
	return reactions, nil
}
