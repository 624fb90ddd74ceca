package database

import (
	"database/sql"
	"time"
)

// Chat represents a Telegram chat the collector has observed. Chats are
// created on first reference and deactivated (never deleted) when the
// collector is removed from them.
type Chat struct {
	ChatID         int64          `db:"chat_id"`
	Type           sql.NullString `db:"type"`
	Title          sql.NullString `db:"title"`
	Description    sql.NullString `db:"description"`
	MemberCount    sql.NullInt64  `db:"member_count"`
	FirstSeenTS    time.Time      `db:"first_seen_ts"`
	LastActivityTS time.Time      `db:"last_activity_ts"`
	IsActive       bool           `db:"is_active"`
	RawData        sql.NullString `db:"raw_data"`
}

// User represents a Telegram user observed as a sender, reaction author,
// forward origin, or status-change actor. Users are never deleted; fields
// merge additively across sightings.
type User struct {
	UserID       int64          `db:"user_id"`
	Username     sql.NullString `db:"username"`
	FirstName    sql.NullString `db:"first_name"`
	LastName     sql.NullString `db:"last_name"`
	IsBot        bool           `db:"is_bot"`
	IsPremium    sql.NullBool   `db:"is_premium"`
	LanguageCode sql.NullString `db:"language_code"`
	FirstSeenTS  time.Time      `db:"first_seen_ts"`
	LastSeenTS   time.Time      `db:"last_seen_ts"`
	RawData      sql.NullString `db:"raw_data"`
}

// Message is a stored chat message. InternalID is a surrogate key distinct
// from the Telegram message id, because message ids are only unique within
// a chat. ReplyToInternalID is self-referential and nullable; a dangling
// reply degrades to NULL rather than blocking ingestion.
type Message struct {
	InternalID int64     `db:"internal_id"`
	MessageID  int64     `db:"message_id"`
	ChatID     int64     `db:"chat_id"`
	UserID     int64     `db:"user_id"`
	DateTS     time.Time `db:"date_ts"`

	EditDateTS sql.NullTime   `db:"edit_date_ts"`
	Text       sql.NullString `db:"text"`
	Caption    sql.NullString `db:"caption"`
	Entities   sql.NullString `db:"entities"`

	ReplyToInternalID sql.NullInt64 `db:"reply_to_internal_id"`

	ForwardFromUserID sql.NullInt64 `db:"forward_from_user_id"`
	ForwardFromChatID sql.NullInt64 `db:"forward_from_chat_id"`
	ForwardDateTS     sql.NullTime  `db:"forward_date_ts"`

	MessageThreadID sql.NullInt64 `db:"message_thread_id"`

	HasMedia          bool           `db:"has_media"`
	MediaType         sql.NullString `db:"media_type"`
	MediaFileID       sql.NullString `db:"media_file_id"`
	MediaFileUniqueID sql.NullString `db:"media_file_unique_id"`

	Summarized bool           `db:"summarized"`
	RawData    sql.NullString `db:"raw_data"`
}

// Content returns the message text, falling back to the media caption.
func (m *Message) Content() string {
	if m.Text.Valid && m.Text.String != "" {
		return m.Text.String
	}
	return m.Caption.String
}

// Reaction is a single emoji set by a user on a message. A user holds at
// most one row per emoji per message.
type Reaction struct {
	InternalMessageID int64     `db:"internal_message_id"`
	UserID            int64     `db:"user_id"`
	Emoji             string    `db:"emoji"`
	AddedTS           time.Time `db:"added_ts"`
}

// Summary is a generated digest covering a batch of messages in one chat.
type Summary struct {
	ID                     int64         `db:"id"`
	ChatID                 int64         `db:"chat_id"`
	Text                   string        `db:"text"`
	MessageCount           int           `db:"message_count"`
	FirstMessageInternalID sql.NullInt64 `db:"first_message_internal_id"`
	LastMessageInternalID  sql.NullInt64 `db:"last_message_internal_id"`
	CreatedTS              time.Time     `db:"created_ts"`
	Published              bool          `db:"published"`
	PublishedTS            sql.NullTime  `db:"published_ts"`
}

// ChatLogEntry is a message joined with its sender's display names, as
// consumed by the summarizer transcript builder.
type ChatLogEntry struct {
	Message
	SenderFirstName sql.NullString `db:"sender_first_name"`
	SenderLastName  sql.NullString `db:"sender_last_name"`
}

// SenderName returns the sender's display name for transcripts.
func (e *ChatLogEntry) SenderName() string {
	name := e.SenderFirstName.String
	if e.SenderLastName.Valid && e.SenderLastName.String != "" {
		if name != "" {
			name += " "
		}
		name += e.SenderLastName.String
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

// ChatStats holds aggregate counters over the unsummarized portion of a
// chat, used to build the summary header.
type ChatStats struct {
	TotalMessages int `db:"total_messages"`
	ActiveUsers   int `db:"active_users"`
	MediaMessages int `db:"media_messages"`
}
