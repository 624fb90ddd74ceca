package database_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edgard/resumobot/internal/database"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db") + "?_time_format=sqlite"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB(%q) failed: %v", dbPath, err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return database.NewStore(db, log)
}

func chatInfo(id int64) database.ChatInfo {
	return database.ChatInfo{ID: id, Type: "supergroup", Title: "Test Chat"}
}

func userInfo(id int64) database.UserInfo {
	return database.UserInfo{ID: id, Username: "tester", FirstName: "Test", LastName: "User"}
}

func msgEvent(chatID, userID, messageID int64, text string, date time.Time) database.MessageEvent {
	return database.MessageEvent{
		Chat:      chatInfo(chatID),
		From:      userInfo(userID),
		MessageID: messageID,
		Date:      date,
		Text:      text,
	}
}

func TestRecordMessageIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	ev := msgEvent(100, 1, 10, "hello", baseTime)

	first, err := store.RecordMessage(ctx, ev)
	if err != nil {
		t.Fatalf("first RecordMessage failed: %v", err)
	}
	second, err := store.RecordMessage(ctx, ev)
	if err != nil {
		t.Fatalf("duplicate RecordMessage failed: %v", err)
	}

	if first.InternalID != second.InternalID {
		t.Errorf("duplicate delivery created a new row: internal ids %d and %d", first.InternalID, second.InternalID)
	}
	if got := second.Text.String; got != "hello" {
		t.Errorf("duplicate delivery changed text: got %q", got)
	}
}

func TestRecordMessageValidation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		ev      database.MessageEvent
		wantErr error
	}{
		{"missing chat", msgEvent(0, 1, 10, "x", baseTime), database.ErrMissingChatID},
		{"missing sender", msgEvent(100, 0, 10, "x", baseTime), database.ErrMissingUserID},
		{"missing message id", msgEvent(100, 1, 0, "x", baseTime), database.ErrMissingMessageID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.RecordMessage(ctx, tt.ev); err != tt.wantErr {
				t.Errorf("RecordMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordMessageMedia(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	ev := msgEvent(100, 1, 10, "", baseTime)
	ev.Caption = "a photo"
	ev.Media = &database.MediaRef{Type: "photo", FileID: "file-1", FileUniqueID: "uniq-1"}

	msg, err := store.RecordMessage(ctx, ev)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	if !msg.HasMedia {
		t.Error("HasMedia = false, want true")
	}
	if msg.MediaType.String != "photo" || msg.MediaFileID.String != "file-1" {
		t.Errorf("media fields = (%q, %q), want (photo, file-1)", msg.MediaType.String, msg.MediaFileID.String)
	}
	if msg.Content() != "a photo" {
		t.Errorf("Content() = %q, want caption fallback", msg.Content())
	}
}

func TestEnsureUserAdditiveMerge(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	full := database.UserInfo{
		ID: 7, Username: "alice", FirstName: "Alice", LastName: "Smith",
		LanguageCode: "en", IsPremium: true,
	}
	if _, err := store.EnsureUser(ctx, full); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	// A later sighting with only the id must not erase anything, and the
	// premium flag must not downgrade.
	got, err := store.EnsureUser(ctx, database.UserInfo{ID: 7})
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	if got.Username.String != "alice" || got.FirstName.String != "Alice" || got.LastName.String != "Smith" {
		t.Errorf("sparse sighting erased names: %+v", got)
	}
	if got.LanguageCode.String != "en" {
		t.Errorf("sparse sighting erased language code: %q", got.LanguageCode.String)
	}
	if !got.IsPremium.Valid || !got.IsPremium.Bool {
		t.Error("premium flag downgraded by sparse sighting")
	}

	// A changed username overwrites the stored one.
	got, err = store.EnsureUser(ctx, database.UserInfo{ID: 7, Username: "alice2"})
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if got.Username.String != "alice2" {
		t.Errorf("username not overwritten: %q", got.Username.String)
	}
}

func TestDeactivateAndReactivateChat(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureChat(ctx, chatInfo(200)); err != nil {
		t.Fatalf("EnsureChat failed: %v", err)
	}
	if err := store.DeactivateChat(ctx, 200); err != nil {
		t.Fatalf("DeactivateChat failed: %v", err)
	}

	chat, err := store.GetChat(ctx, 200)
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat.IsActive {
		t.Error("chat still active after deactivation")
	}
	if chat.Title.String != "Test Chat" {
		t.Error("deactivation erased chat attributes")
	}

	// Any new sighting reactivates.
	chat, err = store.EnsureChat(ctx, database.ChatInfo{ID: 200})
	if err != nil {
		t.Fatalf("EnsureChat failed: %v", err)
	}
	if !chat.IsActive {
		t.Error("chat not reactivated by new sighting")
	}
}

func TestApplyEditMonotonicity(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordMessage(ctx, msgEvent(100, 1, 10, "original", baseTime)); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	edit := msgEvent(100, 1, 10, "edited", baseTime)
	edit.EditDate = baseTime.Add(time.Minute)
	msg, err := store.ApplyEdit(ctx, edit)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if msg.Text.String != "edited" {
		t.Fatalf("edit not applied: text = %q", msg.Text.String)
	}

	// Same timestamp again: no-op.
	replay := msgEvent(100, 1, 10, "replayed", baseTime)
	replay.EditDate = baseTime.Add(time.Minute)
	msg, err = store.ApplyEdit(ctx, replay)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if msg.Text.String != "edited" {
		t.Errorf("equal-timestamp edit was applied: text = %q", msg.Text.String)
	}

	// Older timestamp: no-op.
	stale := msgEvent(100, 1, 10, "stale", baseTime)
	stale.EditDate = baseTime.Add(30 * time.Second)
	msg, err = store.ApplyEdit(ctx, stale)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if msg.Text.String != "edited" {
		t.Errorf("stale edit was applied: text = %q", msg.Text.String)
	}

	// Strictly newer: applied.
	newer := msgEvent(100, 1, 10, "newest", baseTime)
	newer.EditDate = baseTime.Add(2 * time.Minute)
	msg, err = store.ApplyEdit(ctx, newer)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if msg.Text.String != "newest" {
		t.Errorf("newer edit not applied: text = %q", msg.Text.String)
	}
}

func TestApplyEditUnknownMessageRecords(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	edit := msgEvent(100, 1, 55, "seen only as edit", baseTime)
	edit.EditDate = baseTime.Add(time.Minute)

	msg, err := store.ApplyEdit(ctx, edit)
	if err != nil {
		t.Fatalf("ApplyEdit failed: %v", err)
	}
	if msg == nil || msg.Text.String != "seen only as edit" {
		t.Fatalf("edit for unknown message not recorded: %+v", msg)
	}

	stored, err := store.GetMessage(ctx, 100, 55)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if stored == nil {
		t.Fatal("message not persisted")
	}
}

func TestReplyResolution(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	target, err := store.RecordMessage(ctx, msgEvent(100, 1, 10, "target", baseTime))
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	reply := msgEvent(100, 2, 11, "reply", baseTime.Add(time.Second))
	reply.ReplyTo = &database.ReplyRef{MessageID: 10, ChatID: 100}
	msg, err := store.RecordMessage(ctx, reply)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}
	if !msg.ReplyToInternalID.Valid || msg.ReplyToInternalID.Int64 != target.InternalID {
		t.Errorf("reply not resolved: got %+v, want internal id %d", msg.ReplyToInternalID, target.InternalID)
	}

	// A reply to a message never observed degrades to null.
	dangling := msgEvent(100, 2, 12, "dangling", baseTime.Add(2*time.Second))
	dangling.ReplyTo = &database.ReplyRef{MessageID: 999, ChatID: 100}
	msg, err = store.RecordMessage(ctx, dangling)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}
	if msg.ReplyToInternalID.Valid {
		t.Errorf("dangling reply resolved to %d, want null", msg.ReplyToInternalID.Int64)
	}
}

func TestReplyToUnseenTopicRootSynthesizesRoot(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	creator := userInfo(3)
	reply := msgEvent(100, 2, 80, "in topic", baseTime)
	reply.IsTopicMessage = true
	reply.ThreadID = 77
	reply.ReplyTo = &database.ReplyRef{
		MessageID:    77,
		ChatID:       100,
		From:         &creator,
		Date:         baseTime.Add(-time.Hour),
		TopicCreated: &database.TopicCreated{Name: "News"},
	}

	msg, err := store.RecordMessage(ctx, reply)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	root, err := store.GetMessage(ctx, 100, 77)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if root == nil {
		t.Fatal("topic root not synthesized")
	}
	if got, want := root.Text.String, "[Created topic: News]"; got != want {
		t.Errorf("root text = %q, want %q", got, want)
	}
	if !root.MessageThreadID.Valid || root.MessageThreadID.Int64 != 77 {
		t.Errorf("root thread id = %+v, want 77", root.MessageThreadID)
	}
	if root.UserID != 3 {
		t.Errorf("root attributed to user %d, want creator 3", root.UserID)
	}
	if !msg.ReplyToInternalID.Valid || msg.ReplyToInternalID.Int64 != root.InternalID {
		t.Errorf("reply not linked to synthesized root: %+v", msg.ReplyToInternalID)
	}
}

func TestTopicBackfillWithoutReply(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	ev := msgEvent(100, 2, 80, "topic chatter", baseTime)
	ev.IsTopicMessage = true
	ev.ThreadID = 77

	if _, err := store.RecordMessage(ctx, ev); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	root, err := store.GetMessage(ctx, 100, 77)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if root == nil {
		t.Fatal("topic root not backfilled")
	}
	if got, want := root.Text.String, "[Created topic: Topic #77]"; got != want {
		t.Errorf("placeholder text = %q, want %q", got, want)
	}
	if root.UserID != 2 {
		t.Errorf("placeholder attributed to user %d, want current sender 2", root.UserID)
	}
}

func TestTopicPlaceholderReconciledInPlace(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	// First a backfilled placeholder.
	first := msgEvent(100, 2, 80, "early message", baseTime)
	first.IsTopicMessage = true
	first.ThreadID = 77
	if _, err := store.RecordMessage(ctx, first); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}
	placeholder, err := store.GetMessage(ctx, 100, 77)
	if err != nil || placeholder == nil {
		t.Fatalf("placeholder missing: %v", err)
	}

	// Then a reply carrying the genuine topic metadata.
	creator := userInfo(3)
	second := msgEvent(100, 4, 81, "later message", baseTime.Add(time.Minute))
	second.IsTopicMessage = true
	second.ThreadID = 77
	second.ReplyTo = &database.ReplyRef{
		MessageID:    77,
		ChatID:       100,
		From:         &creator,
		TopicCreated: &database.TopicCreated{Name: "Real Name"},
	}
	if _, err := store.RecordMessage(ctx, second); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	root, err := store.GetMessage(ctx, 100, 77)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if root.InternalID != placeholder.InternalID {
		t.Errorf("reconciliation created a new row: %d vs %d", root.InternalID, placeholder.InternalID)
	}
	if got, want := root.Text.String, "[Created topic: Real Name]"; got != want {
		t.Errorf("root text = %q, want %q", got, want)
	}
}

func TestForwardProvenance(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	origin := database.UserInfo{ID: 42, FirstName: "Origin"}
	ev := msgEvent(100, 1, 10, "forwarded text", baseTime)
	ev.Forward = &database.ForwardRef{FromUser: &origin, Date: baseTime.Add(-time.Hour)}

	msg, err := store.RecordMessage(ctx, ev)
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}
	if !msg.ForwardFromUserID.Valid || msg.ForwardFromUserID.Int64 != 42 {
		t.Errorf("forward origin not recorded: %+v", msg.ForwardFromUserID)
	}
	if !msg.ForwardDateTS.Valid {
		t.Error("forward date not recorded")
	}

	user, err := store.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil || user.FirstName.String != "Origin" {
		t.Errorf("forward origin user not ensured: %+v", user)
	}
}

func TestReactionSnapshotDiff(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	msg, err := store.RecordMessage(ctx, msgEvent(100, 1, 10, "react to me", baseTime))
	if err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	snapshot := database.ReactionEvent{
		Chat: chatInfo(100), User: userInfo(2), MessageID: 10, Date: baseTime,
		Old: nil, New: []string{"\U0001F44D", "\U0001F525"},
	}
	if err := store.ApplyReactionSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("ApplyReactionSnapshot failed: %v", err)
	}

	// Replace one emoji, keep the other.
	snapshot.Old = []string{"\U0001F44D", "\U0001F525"}
	snapshot.New = []string{"\U0001F525", "❤️"}
	if err := store.ApplyReactionSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("ApplyReactionSnapshot failed: %v", err)
	}

	reactions, err := store.GetReactions(ctx, msg.InternalID)
	if err != nil {
		t.Fatalf("GetReactions failed: %v", err)
	}
	got := make(map[string]bool, len(reactions))
	for _, r := range reactions {
		got[r.Emoji] = true
	}
	want := map[string]bool{"\U0001F525": true, "❤️": true}
	if len(got) != len(want) || !got["\U0001F525"] || !got["❤️"] {
		t.Errorf("reactions after diff = %v, want %v", got, want)
	}
}

func TestReactionUnknownMessageSkipped(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	snapshot := database.ReactionEvent{
		Chat: chatInfo(100), User: userInfo(2), MessageID: 999, Date: baseTime,
		New: []string{"\U0001F44D"},
	}
	if err := store.ApplyReactionSnapshot(ctx, snapshot); err != nil {
		t.Errorf("snapshot for unknown message should be dropped, got error: %v", err)
	}
}

func TestSummarizationWatermark(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		ev := msgEvent(100, 1, 10+i, "message", baseTime.Add(time.Duration(i)*time.Minute))
		if _, err := store.RecordMessage(ctx, ev); err != nil {
			t.Fatalf("RecordMessage failed: %v", err)
		}
	}

	entries, err := store.GetUnsummarizedMessages(ctx, 100, 10)
	if err != nil {
		t.Fatalf("GetUnsummarizedMessages failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d unsummarized messages, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].DateTS.Before(entries[i-1].DateTS) {
			t.Error("unsummarized messages not in chronological order")
		}
	}

	ids := []int64{entries[0].InternalID, entries[1].InternalID}
	if err := store.MarkMessagesSummarized(ctx, ids); err != nil {
		t.Fatalf("MarkMessagesSummarized failed: %v", err)
	}

	remaining, err := store.GetUnsummarizedMessages(ctx, 100, 10)
	if err != nil {
		t.Fatalf("GetUnsummarizedMessages failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].InternalID != entries[2].InternalID {
		t.Fatalf("watermark not advanced: %d messages remain", len(remaining))
	}

	// Re-marking the same ids is a no-op.
	if err := store.MarkMessagesSummarized(ctx, ids); err != nil {
		t.Fatalf("repeated MarkMessagesSummarized failed: %v", err)
	}
	remaining, err = store.GetUnsummarizedMessages(ctx, 100, 10)
	if err != nil {
		t.Fatalf("GetUnsummarizedMessages failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("repeated marking changed state: %d messages remain", len(remaining))
	}

	stats, err := store.GetChatStats(ctx, 100)
	if err != nil {
		t.Fatalf("GetChatStats failed: %v", err)
	}
	if stats.TotalMessages != 1 {
		t.Errorf("stats over unsummarized messages = %d, want 1", stats.TotalMessages)
	}
}

func TestGetChatsForSummaryThreshold(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if _, err := store.RecordMessage(ctx, msgEvent(100, 1, i, "busy", baseTime.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("RecordMessage failed: %v", err)
		}
	}
	if _, err := store.RecordMessage(ctx, msgEvent(200, 1, 1, "quiet", baseTime)); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	chats, err := store.GetChatsForSummary(ctx, 2)
	if err != nil {
		t.Fatalf("GetChatsForSummary failed: %v", err)
	}
	if len(chats) != 1 || chats[0].ChatID != 100 {
		t.Fatalf("GetChatsForSummary = %+v, want only chat 100", chats)
	}

	// Deactivated chats are excluded even with backlog.
	if err := store.DeactivateChat(ctx, 100); err != nil {
		t.Fatalf("DeactivateChat failed: %v", err)
	}
	chats, err = store.GetChatsForSummary(ctx, 2)
	if err != nil {
		t.Fatalf("GetChatsForSummary failed: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("inactive chat selected for summary: %+v", chats)
	}
}

func TestSummaryLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureChat(ctx, chatInfo(100)); err != nil {
		t.Fatalf("EnsureChat failed: %v", err)
	}

	summary := &database.Summary{ChatID: 100, Text: "digest", MessageCount: 5}
	if err := store.CreateSummary(ctx, summary); err != nil {
		t.Fatalf("CreateSummary failed: %v", err)
	}
	if summary.ID == 0 {
		t.Fatal("CreateSummary did not fill in the generated id")
	}

	if err := store.MarkSummaryPublished(ctx, summary.ID); err != nil {
		t.Fatalf("MarkSummaryPublished failed: %v", err)
	}
}

func TestEnsureChatConcurrent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	chats := make([]*database.Chat, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chats[i], errs[i] = store.EnsureChat(ctx, chatInfo(500))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("EnsureChat call %d failed: %v", i, errs[i])
		}
		if chats[i].ChatID != 500 || chats[i].Title.String != "Test Chat" {
			t.Errorf("EnsureChat call %d returned %+v", i, chats[i])
		}
	}
}
