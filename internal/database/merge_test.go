package database

import (
	"database/sql"
	"reflect"
	"testing"
	"time"
)

func TestMergeUserRow(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	user := newUserRow(UserInfo{
		ID: 1, Username: "alice", FirstName: "Alice", LanguageCode: "en", IsPremium: true,
	}, now)

	// Absent fields never erase, set fields overwrite.
	mergeUserRow(user, UserInfo{ID: 1, FirstName: "Alicia"}, later)

	if user.Username.String != "alice" {
		t.Errorf("username erased: %q", user.Username.String)
	}
	if user.FirstName.String != "Alicia" {
		t.Errorf("first name not overwritten: %q", user.FirstName.String)
	}
	if user.LanguageCode.String != "en" {
		t.Errorf("language code erased: %q", user.LanguageCode.String)
	}
	if !user.IsPremium.Bool {
		t.Error("premium flag downgraded by absent field")
	}
	if !user.LastSeenTS.Equal(later) {
		t.Errorf("last seen not refreshed: %v", user.LastSeenTS)
	}
	if !user.FirstSeenTS.Equal(now) {
		t.Errorf("first seen changed on merge: %v", user.FirstSeenTS)
	}
}

func TestMergeChatRowForcesActive(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	chat := newChatRow(ChatInfo{ID: 1, Title: "Old Title", Type: "group"}, now)
	chat.IsActive = false

	mergeChatRow(chat, ChatInfo{ID: 1, MemberCount: 12}, now.Add(time.Hour))

	if !chat.IsActive {
		t.Error("sighting did not reactivate chat")
	}
	if chat.Title.String != "Old Title" {
		t.Errorf("title erased: %q", chat.Title.String)
	}
	if chat.MemberCount != (sql.NullInt64{Int64: 12, Valid: true}) {
		t.Errorf("member count not set: %+v", chat.MemberCount)
	}
}

func TestDiffEmojiSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		old        []string
		updated    []string
		wantRemove []string
		wantAdd    []string
	}{
		{
			name: "both empty",
		},
		{
			name:    "all new",
			updated: []string{"a", "b"},
			wantAdd: []string{"a", "b"},
		},
		{
			name:       "all removed",
			old:        []string{"a", "b"},
			wantRemove: []string{"a", "b"},
		},
		{
			name:       "overlap untouched",
			old:        []string{"a", "b"},
			updated:    []string{"b", "c"},
			wantRemove: []string{"a"},
			wantAdd:    []string{"c"},
		},
		{
			name:    "duplicates collapse",
			old:     []string{"a", "a"},
			updated: []string{"a", "b", "b"},
			wantAdd: []string{"b"},
		},
		{
			name:    "identical sets",
			old:     []string{"a", "b"},
			updated: []string{"b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotRemove, gotAdd := diffEmojiSets(tt.old, tt.updated)
			if !reflect.DeepEqual(gotRemove, tt.wantRemove) {
				t.Errorf("toRemove = %v, want %v", gotRemove, tt.wantRemove)
			}
			if !reflect.DeepEqual(gotAdd, tt.wantAdd) {
				t.Errorf("toAdd = %v, want %v", gotAdd, tt.wantAdd)
			}
		})
	}
}
