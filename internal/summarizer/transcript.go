package summarizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/edgard/resumobot/internal/database"
)

// BuildTranscript renders messages as "[HH:MM:SS] Name: text" lines in the
// order given. Messages without text or caption are skipped.
func BuildTranscript(entries []database.ChatLogEntry) string {
	var sb strings.Builder
	for i := range entries {
		e := &entries[i]
		content := e.Content()
		if content == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			e.DateTS.Format("15:04:05"), e.SenderName(), content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BuildStats renders the statistics header that precedes every summary.
// The counters come from the store aggregate; the most active hour is
// derived from the batch itself.
func BuildStats(stats *database.ChatStats, entries []database.ChatLogEntry) string {
	var sb strings.Builder
	sb.WriteString("*\U0001F4CA Chat statistics:*\n")
	sb.WriteString(fmt.Sprintf("\U0001F4AC Total messages: %d\n", stats.TotalMessages))
	sb.WriteString(fmt.Sprintf("\U0001F465 Unique senders: %d\n", stats.ActiveUsers))
	sb.WriteString(fmt.Sprintf("\U0001F4F7 Media messages: %d\n", stats.MediaMessages))

	if hour, count, ok := mostActiveHour(entries); ok {
		sb.WriteString(fmt.Sprintf("\n*Most active hour:* %d:00 (%d messages)", hour, count))
	}
	return sb.String()
}

func mostActiveHour(entries []database.ChatLogEntry) (hour, count int, ok bool) {
	if len(entries) == 0 {
		return 0, 0, false
	}
	counts := make(map[int]int)
	for i := range entries {
		counts[entries[i].DateTS.Hour()]++
	}
	hour, count = -1, 0
	for h, c := range counts {
		if c > count || (c == count && h < hour) {
			hour, count = h, c
		}
	}
	return hour, count, true
}

var wordPattern = regexp.MustCompile(`[\p{L}]{4,}`)

var stopWords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {}, "what": {},
	"your": {}, "just": {}, "like": {}, "about": {}, "there": {}, "they": {},
	"будет": {}, "этот": {}, "если": {}, "или": {}, "para": {}, "este": {},
	"essa": {}, "isso": {}, "mais": {}, "como": {},
}

type wordCount struct {
	word  string
	count int
}

// FallbackSummary builds a keyword-frequency digest when the model is
// unavailable. It appends the top discussion words to the stats header so
// the scheduled run still publishes something useful.
func FallbackSummary(statsHeader string, entries []database.ChatLogEntry) string {
	counts := make(map[string]int)
	order := make(map[string]int)
	next := 0
	for i := range entries {
		for _, w := range wordPattern.FindAllString(strings.ToLower(entries[i].Content()), -1) {
			if _, skip := stopWords[w]; skip {
				continue
			}
			if _, seen := counts[w]; !seen {
				order[w] = next
				next++
			}
			counts[w]++
		}
	}

	top := make([]wordCount, 0, len(counts))
	for w, c := range counts {
		top = append(top, wordCount{word: w, count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].count != top[j].count {
			return top[i].count > top[j].count
		}
		return order[top[i].word] < order[top[j].word]
	})
	if len(top) > 10 {
		top = top[:10]
	}

	var sb strings.Builder
	sb.WriteString(statsHeader)
	sb.WriteString("\n\n*Popular discussion topics:*\n")
	if len(top) == 0 {
		sb.WriteString("No keywords found\n")
		return sb.String()
	}
	for _, wc := range top {
		sb.WriteString(fmt.Sprintf("• %s (%d)\n", wc.word, wc.count))
	}
	return sb.String()
}
