package summarizer_test

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/edgard/resumobot/internal/database"
	"github.com/edgard/resumobot/internal/summarizer"
)

func entry(first, last, text string, at time.Time) database.ChatLogEntry {
	e := database.ChatLogEntry{
		SenderFirstName: sql.NullString{String: first, Valid: first != ""},
		SenderLastName:  sql.NullString{String: last, Valid: last != ""},
	}
	e.DateTS = at
	if text != "" {
		e.Text = sql.NullString{String: text, Valid: true}
	}
	return e
}

func TestBuildTranscript(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC)

	entries := []database.ChatLogEntry{
		entry("Alice", "Smith", "hello everyone", at),
		entry("Bob", "", "hi Alice", at.Add(time.Minute)),
		entry("Carol", "", "", at.Add(2*time.Minute)),
	}

	got := summarizer.BuildTranscript(entries)
	want := "[14:30:05] Alice Smith: hello everyone\n[14:31:05] Bob: hi Alice"
	if got != want {
		t.Errorf("BuildTranscript() = %q, want %q", got, want)
	}
}

func TestBuildTranscriptCaptionFallback(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	e := entry("Alice", "", "", at)
	e.Caption = sql.NullString{String: "look at this", Valid: true}

	got := summarizer.BuildTranscript([]database.ChatLogEntry{e})
	if got != "[09:00:00] Alice: look at this" {
		t.Errorf("BuildTranscript() = %q", got)
	}
}

func TestBuildStats(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	stats := &database.ChatStats{TotalMessages: 3, ActiveUsers: 2, MediaMessages: 1}
	entries := []database.ChatLogEntry{
		entry("A", "", "x", at),
		entry("B", "", "y", at.Add(time.Minute)),
		entry("A", "", "z", at.Add(5*time.Hour)),
	}

	got := summarizer.BuildStats(stats, entries)

	for _, want := range []string{
		"Total messages: 3",
		"Unique senders: 2",
		"Media messages: 1",
		"*Most active hour:* 14:00 (2 messages)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("BuildStats() missing %q in:\n%s", want, got)
		}
	}
}

func TestFallbackSummaryTopWords(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	entries := []database.ChatLogEntry{
		entry("A", "", "deployment deployment deployment", at),
		entry("B", "", "rollback after the deployment", at),
		entry("A", "", "ok", at),
	}

	got := summarizer.FallbackSummary("header", entries)

	if !strings.HasPrefix(got, "header") {
		t.Error("fallback summary does not start with the stats header")
	}
	if !strings.Contains(got, "deployment (4)") {
		t.Errorf("top word missing from fallback:\n%s", got)
	}
	if !strings.Contains(got, "rollback (1)") {
		t.Errorf("secondary word missing from fallback:\n%s", got)
	}
	// Short words are not keywords.
	if strings.Contains(got, "• ok") {
		t.Errorf("short word counted as keyword:\n%s", got)
	}
}

func TestFallbackSummaryNoKeywords(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	got := summarizer.FallbackSummary("header", []database.ChatLogEntry{entry("A", "", "ok", at)})
	if !strings.Contains(got, "No keywords found") {
		t.Errorf("expected empty-keyword notice, got:\n%s", got)
	}
}
