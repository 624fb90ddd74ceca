package handlers

import (
	"encoding/json"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/resumobot/internal/database"
)

// Conversion from go-telegram update models to the transport-independent
// events the store consumes. Absent optional fields stay zero-valued so
// the store's additive merge never erases stored attributes.

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func chatInfoFromModel(chat models.Chat) database.ChatInfo {
	title := chat.Title
	if title == "" && chat.Type == "private" {
		title = chat.FirstName
		if chat.LastName != "" {
			title += " " + chat.LastName
		}
	}
	return database.ChatInfo{
		ID:      chat.ID,
		Type:    string(chat.Type),
		Title:   title,
		RawData: marshalJSON(chat),
	}
}

func userInfoFromModel(user *models.User) database.UserInfo {
	if user == nil {
		return database.UserInfo{}
	}
	return database.UserInfo{
		ID:           user.ID,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		IsBot:        user.IsBot,
		IsPremium:    user.IsPremium,
		LanguageCode: user.LanguageCode,
		RawData:      marshalJSON(user),
	}
}

// mediaFromModel extracts the photo or video attachment. Telegram sends
// photos as a size ladder; the last element is the highest resolution.
func mediaFromModel(msg *models.Message) *database.MediaRef {
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		return &database.MediaRef{
			Type:         "photo",
			FileID:       photo.FileID,
			FileUniqueID: photo.FileUniqueID,
		}
	}
	if msg.Video != nil {
		return &database.MediaRef{
			Type:         "video",
			FileID:       msg.Video.FileID,
			FileUniqueID: msg.Video.FileUniqueID,
		}
	}
	return nil
}

func topicCreatedFromModel(tc *models.ForumTopicCreated) *database.TopicCreated {
	if tc == nil {
		return nil
	}
	return &database.TopicCreated{
		Name:      tc.Name,
		IconColor: tc.IconColor,
	}
}

func replyRefFromModel(reply *models.Message) *database.ReplyRef {
	if reply == nil {
		return nil
	}
	ref := &database.ReplyRef{
		MessageID:    int64(reply.ID),
		ChatID:       reply.Chat.ID,
		Date:         time.Unix(int64(reply.Date), 0).UTC(),
		TopicCreated: topicCreatedFromModel(reply.ForumTopicCreated),
		RawData:      marshalJSON(reply),
	}
	if reply.From != nil {
		from := userInfoFromModel(reply.From)
		ref.From = &from
	}
	return ref
}

// forwardRefFromModel maps forward provenance. Hidden-user origins carry
// no resolvable entity and yield no provenance.
func forwardRefFromModel(origin *models.MessageOrigin) *database.ForwardRef {
	if origin == nil {
		return nil
	}
	switch {
	case origin.MessageOriginUser != nil:
		user := userInfoFromModel(&origin.MessageOriginUser.SenderUser)
		return &database.ForwardRef{
			FromUser: &user,
			Date:     time.Unix(int64(origin.MessageOriginUser.Date), 0).UTC(),
		}
	case origin.MessageOriginChat != nil:
		chat := chatInfoFromModel(origin.MessageOriginChat.SenderChat)
		return &database.ForwardRef{
			FromChat: &chat,
			Date:     time.Unix(int64(origin.MessageOriginChat.Date), 0).UTC(),
		}
	case origin.MessageOriginChannel != nil:
		chat := chatInfoFromModel(origin.MessageOriginChannel.Chat)
		return &database.ForwardRef{
			FromChat: &chat,
			Date:     time.Unix(int64(origin.MessageOriginChannel.Date), 0).UTC(),
		}
	}
	return nil
}

func messageEventFromModel(msg *models.Message) database.MessageEvent {
	ev := database.MessageEvent{
		Chat:           chatInfoFromModel(msg.Chat),
		From:           userInfoFromModel(msg.From),
		MessageID:      int64(msg.ID),
		Date:           time.Unix(int64(msg.Date), 0).UTC(),
		Text:           msg.Text,
		Caption:        msg.Caption,
		ReplyTo:        replyRefFromModel(msg.ReplyToMessage),
		Forward:        forwardRefFromModel(msg.ForwardOrigin),
		Media:          mediaFromModel(msg),
		ThreadID:       int64(msg.MessageThreadID),
		IsTopicMessage: msg.IsTopicMessage,
		TopicCreated:   topicCreatedFromModel(msg.ForumTopicCreated),
		RawData:        marshalJSON(msg),
	}
	if msg.EditDate != 0 {
		ev.EditDate = time.Unix(int64(msg.EditDate), 0).UTC()
	}
	if len(msg.Entities) > 0 {
		ev.Entities = marshalJSON(msg.Entities)
	} else if len(msg.CaptionEntities) > 0 {
		ev.Entities = marshalJSON(msg.CaptionEntities)
	}
	return ev
}

// emojiList keeps only emoji-kind reactions; custom-emoji and paid
// reactions are dropped.
func emojiList(reactions []models.ReactionType) []string {
	var emojis []string
	for _, r := range reactions {
		if r.ReactionTypeEmoji != nil && r.ReactionTypeEmoji.Emoji != "" {
			emojis = append(emojis, r.ReactionTypeEmoji.Emoji)
		}
	}
	return emojis
}

func reactionEventFromModel(upd *models.MessageReactionUpdated) database.ReactionEvent {
	return database.ReactionEvent{
		Chat:      chatInfoFromModel(upd.Chat),
		User:      userInfoFromModel(upd.User),
		MessageID: int64(upd.MessageID),
		Date:      time.Unix(int64(upd.Date), 0).UTC(),
		Old:       emojiList(upd.OldReaction),
		New:       emojiList(upd.NewReaction),
	}
}
