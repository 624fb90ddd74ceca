package database

import "time"

// ChatInfo carries the chat attributes observed on an incoming event.
// Zero-valued optional fields are treated as absent and never erase
// previously stored values.
type ChatInfo struct {
	ID          int64
	Type        string
	Title       string
	Description string
	MemberCount int
	RawData     string
}

// UserInfo carries the user attributes observed on an incoming event.
type UserInfo struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	IsBot        bool
	IsPremium    bool
	LanguageCode string
	RawData      string
}

// TopicCreated is the forum_topic_created service payload attached to a
// topic's root message.
type TopicCreated struct {
	Name      string
	IconColor int
}

// ReplyRef describes the message an incoming message replies to. The
// target may not exist locally yet; TopicCreated and From are carried so
// a virtual topic root can be synthesized when it doesn't.
type ReplyRef struct {
	MessageID    int64
	ChatID       int64
	From         *UserInfo
	Date         time.Time
	TopicCreated *TopicCreated
	RawData      string
}

// ForwardRef describes forward provenance. The forwarded message itself
// is not required to exist locally; this is metadata, not a reference.
type ForwardRef struct {
	FromUser *UserInfo
	FromChat *ChatInfo
	Date     time.Time
}

// MediaRef describes an attached photo or video. For photos the file ids
// belong to the highest-resolution size.
type MediaRef struct {
	Type         string
	FileID       string
	FileUniqueID string
}

// MessageEvent is a transport-independent new-message or edited-message
// event as handed to the ingestion engine.
type MessageEvent struct {
	Chat      ChatInfo
	From      UserInfo
	MessageID int64
	Date      time.Time
	EditDate  time.Time

	Text     string
	Caption  string
	Entities string

	ReplyTo *ReplyRef
	Forward *ForwardRef
	Media   *MediaRef

	ThreadID       int64
	IsTopicMessage bool
	TopicCreated   *TopicCreated

	RawData string
}

// ReactionEvent is a reaction-state snapshot for one (message, user)
// pair. Old and New hold the emoji sets before and after the change;
// non-emoji reaction kinds are already filtered out by the transport.
type ReactionEvent struct {
	Chat      ChatInfo
	User      UserInfo
	MessageID int64
	Date      time.Time
	Old       []string
	New       []string
}
