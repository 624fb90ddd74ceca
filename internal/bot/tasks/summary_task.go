package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/resumobot/internal/config"
	"github.com/edgard/resumobot/internal/database"
	"github.com/edgard/resumobot/internal/summarizer"
)

// maxMessageLength is the per-message budget used when publishing,
// leaving headroom under Telegram's 4096 limit.
const maxMessageLength = 4000

// publishPause spaces out consecutive channel sends.
const publishPause = 500 * time.Millisecond

// SummaryService runs the summary pipeline: select unsummarized messages,
// partition by forum topic, generate a digest per partition, store it,
// publish it to the configured channel, and advance the watermark.
type SummaryService struct {
	logger     *slog.Logger
	cfg        *config.Config
	store      database.Store
	summarizer summarizer.Summarizer
	tg         *tgbot.Bot
}

// NewSummaryService creates a SummaryService from task dependencies.
func NewSummaryService(deps TaskDeps) *SummaryService {
	return &SummaryService{
		logger:     deps.Logger.With("component", "summary_service"),
		cfg:        deps.Config,
		store:      deps.Store,
		summarizer: deps.Summarizer,
		tg:         deps.TG,
	}
}

// newChatSummaryTask creates the scheduled task that summarizes all
// eligible chats.
func newChatSummaryTask(deps TaskDeps, svc *SummaryService) ScheduledTaskFunc {
	log := deps.Logger.With("task", "chat_summary")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled chat summary task")
		startTime := time.Now()

		err := svc.RunAll(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Chat summary task failed", "error", err, "duration", duration)
			return fmt.Errorf("chat summary failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled chat summary task completed", "duration", duration)
		return nil
	}
}

// RunAll summarizes every active chat that has accumulated enough
// unsummarized messages. Per-chat failures are collected so one broken
// chat does not starve the rest.
func (s *SummaryService) RunAll(ctx context.Context) error {
	chats, err := s.store.GetChatsForSummary(ctx, s.cfg.Summary.MinMessages)
	if err != nil {
		return fmt.Errorf("failed to select chats for summary: %w", err)
	}
	if len(chats) == 0 {
		s.logger.InfoContext(ctx, "No chats with enough messages to summarize")
		return nil
	}

	s.logger.InfoContext(ctx, "Summarizing chats", "count", len(chats))

	var errs []error
	for i := range chats {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.RunChat(ctx, &chats[i]); err != nil {
			s.logger.ErrorContext(ctx, "Chat summary failed",
				"chat_id", chats[i].ChatID, "error", err)
			errs = append(errs, fmt.Errorf("chat %d: %w", chats[i].ChatID, err))
		}
	}
	return errors.Join(errs...)
}

// RunChat summarizes the unsummarized backlog of a single chat. When the
// chat uses forum topics each topic is summarized separately, with the
// non-topic messages last.
func (s *SummaryService) RunChat(ctx context.Context, chat *database.Chat) error {
	stats, err := s.store.GetChatStats(ctx, chat.ChatID)
	if err != nil {
		return err
	}

	entries, err := s.store.GetUnsummarizedMessages(ctx, chat.ChatID, s.cfg.Summary.BatchLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		s.logger.DebugContext(ctx, "No unsummarized messages", "chat_id", chat.ChatID)
		return nil
	}

	s.logger.InfoContext(ctx, "Summarizing chat",
		"chat_id", chat.ChatID, "title", chat.Title.String, "messages", len(entries))

	var errs []error
	for _, batch := range PartitionByThread(entries) {
		if err := s.summarizeBatch(ctx, chat, stats, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SummaryService) summarizeBatch(ctx context.Context, chat *database.Chat, stats *database.ChatStats, batch ThreadBatch) error {
	text, err := s.summarizer.Summarize(ctx, batch.Entries)
	if err != nil {
		s.logger.WarnContext(ctx, "Model summary failed, using fallback",
			"chat_id", chat.ChatID, "thread_id", batch.ThreadID, "error", err)
		text = summarizer.FallbackSummary(summarizer.BuildStats(stats, batch.Entries), batch.Entries)
	}

	summary := &database.Summary{
		ChatID:       chat.ChatID,
		Text:         text,
		MessageCount: len(batch.Entries),
	}
	if ids := internalIDs(batch.Entries); len(ids) > 0 {
		summary.FirstMessageInternalID.Int64, summary.FirstMessageInternalID.Valid = ids[0], true
		summary.LastMessageInternalID.Int64, summary.LastMessageInternalID.Valid = ids[len(ids)-1], true
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		return err
	}

	header := buildHeader(chat, batch, stats, time.Now())
	if err := s.publish(ctx, header, text); err != nil {
		// The summary is stored; publication can be retried by hand.
		s.logger.ErrorContext(ctx, "Failed to publish summary to channel",
			"chat_id", chat.ChatID, "summary_id", summary.ID, "error", err)
	} else if err := s.store.MarkSummaryPublished(ctx, summary.ID); err != nil {
		s.logger.WarnContext(ctx, "Failed to flag summary as published",
			"summary_id", summary.ID, "error", err)
	}

	return s.store.MarkMessagesSummarized(ctx, internalIDs(batch.Entries))
}

// publish sends the summary to the configured channel, splitting it into
// parts when it exceeds the Telegram message size limit.
func (s *SummaryService) publish(ctx context.Context, header, text string) error {
	full := header + text
	if len(full) <= maxMessageLength {
		return s.send(ctx, full)
	}

	if err := s.send(ctx, header); err != nil {
		return err
	}
	for i, part := range SplitText(text, maxMessageLength) {
		if i > 0 {
			part = fmt.Sprintf("*Part %d*\n\n%s", i+1, part)
		}
		select {
		case <-time.After(publishPause):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := s.send(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (s *SummaryService) send(ctx context.Context, text string) error {
	_, err := s.tg.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:             s.cfg.Telegram.ChannelID,
		Text:               text,
		ParseMode:          models.ParseModeMarkdownV1,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: tgbot.True()},
	})
	if err != nil {
		return fmt.Errorf("failed to send channel message: %w", err)
	}
	return nil
}

// ThreadBatch is a partition of a chat's backlog: the messages of one
// forum topic, or the non-topic messages when ThreadID is zero.
type ThreadBatch struct {
	ThreadID int64
	Entries  []database.ChatLogEntry
}

// PartitionByThread splits entries by forum topic, preserving the input
// order inside each partition. Topics come first in ascending thread id
// order; the non-topic partition, if any, comes last.
func PartitionByThread(entries []database.ChatLogEntry) []ThreadBatch {
	byThread := make(map[int64][]database.ChatLogEntry)
	for _, e := range entries {
		var threadID int64
		if e.MessageThreadID.Valid {
			threadID = e.MessageThreadID.Int64
		}
		byThread[threadID] = append(byThread[threadID], e)
	}

	ids := make([]int64, 0, len(byThread))
	for id := range byThread {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	batches := make([]ThreadBatch, 0, len(byThread))
	for _, id := range ids {
		batches = append(batches, ThreadBatch{ThreadID: id, Entries: byThread[id]})
	}
	if main, ok := byThread[0]; ok {
		batches = append(batches, ThreadBatch{ThreadID: 0, Entries: main})
	}
	return batches
}

// SplitText cuts s into chunks of at most max bytes, never splitting a
// rune across chunks. Used when a summary exceeds the Telegram message
// size limit.
func SplitText(s string, max int) []string {
	if max <= 0 || s == "" {
		return nil
	}
	var parts []string
	for len(s) > max {
		cut := runeCut(s, max)
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}

// runeCut returns the largest index <= max that falls on a rune boundary
// of s. When max is smaller than the first rune it returns max anyway so
// callers always make progress.
func runeCut(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

const threadTitleLimit = 30

// threadTitle derives a human title for a topic partition from its topic
// root message, falling back to the thread id.
func threadTitle(batch ThreadBatch) string {
	if batch.ThreadID == 0 {
		return ""
	}
	for i := range batch.Entries {
		e := &batch.Entries[i]
		if e.MessageID != batch.ThreadID {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(e.Content(), "[Created topic: "), "]")
		if name != "" {
			return truncate(name, threadTitleLimit)
		}
	}
	if len(batch.Entries) > 0 {
		if content := batch.Entries[0].Content(); content != "" {
			return truncate(content, threadTitleLimit)
		}
	}
	return fmt.Sprintf("Topic %d", batch.ThreadID)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:runeCut(s, max)] + "..."
}

func buildHeader(chat *database.Chat, batch ThreadBatch, stats *database.ChatStats, now time.Time) string {
	title := chat.Title.String
	if title == "" {
		title = fmt.Sprintf("Chat %d", chat.ChatID)
	}

	var sb strings.Builder
	if batch.ThreadID != 0 {
		sb.WriteString(fmt.Sprintf("\U0001F4CC *Topic summary: %s*\n", threadTitle(batch)))
		sb.WriteString(fmt.Sprintf("\U0001F4CA Chat: %s\n", title))
	} else {
		sb.WriteString(fmt.Sprintf("\U0001F4CA *Chat summary: %s*\n", title))
	}
	sb.WriteString(fmt.Sprintf("\U0001F5D3 %s\n", now.Format("02.01.2006")))
	sb.WriteString(fmt.Sprintf("\U0001F4AC Messages analyzed: %d\n", len(batch.Entries)))

	if stats != nil {
		sb.WriteString(fmt.Sprintf("\U0001F465 Active users: %d\n", stats.ActiveUsers))
		mediaCount := 0
		for i := range batch.Entries {
			if batch.Entries[i].HasMedia {
				mediaCount++
			}
		}
		if len(batch.Entries) > 0 {
			percent := float64(mediaCount) / float64(len(batch.Entries)) * 100
			sb.WriteString(fmt.Sprintf("\U0001F4F7 Media content: %d (%.1f%%)\n", mediaCount, percent))
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

func internalIDs(entries []database.ChatLogEntry) []int64 {
	ids := make([]int64, 0, len(entries))
	for i := range entries {
		ids = append(ids, entries[i].InternalID)
	}
	return ids
}
