package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Message tests ---

func TestRoleFromBy(t *testing.T) {
	assert.Equal(t, RoleAssistant, RoleFromBy("ai"))
	assert.Equal(t, RoleUser, RoleFromBy("user"))
	assert.Equal(t, RoleUser, RoleFromBy(""))
}

func TestParseAttachmentType(t *testing.T) {
	assert.Equal(t, AttachmentImage, ParseAttachmentType("image"))
	assert.Equal(t, AttachmentChart, ParseAttachmentType("chart"))
	assert.Equal(t, AttachmentData, ParseAttachmentType("data"))
	assert.Equal(t, AttachmentData, ParseAttachmentType("table"))
}

func TestMessageAnchored(t *testing.T) {
	assert.True(t, Message{Role: RoleUser, Node: "ask_for_jql_verification"}.Anchored())
	assert.False(t, Message{Role: RoleUser}.Anchored())
	assert.False(t, Message{Role: RoleAssistant, Node: "run_jql"}.Anchored())
}

func TestNewIDs(t *testing.T) {
	m1, m2 := NewMessageID(), NewMessageID()
	assert.True(t, strings.HasPrefix(m1, "m-"))
	assert.NotEqual(t, m1, m2)
	assert.True(t, strings.HasPrefix(NewThreadID(), "t-"))
}

// --- Binding tests ---

func TestBindingComplete(t *testing.T) {
	b := Binding{UserID: "u-1", ThreadID: "t-1", Platform: "terra", Endpoint: "ws://x/ws"}
	assert.True(t, b.Complete())
	assert.Equal(t, "terra:u-1:t-1@ws://x/ws", b.String())

	b.ThreadID = ""
	assert.False(t, b.Complete())
}

// --- Thread tests ---

func TestThreadCategories(t *testing.T) {
	tests := []struct {
		c1, c2       string
		want1, want2 string
	}{
		{"Game", "FTUE", "game", "ftue"},
		{"terra", "ftue", "terra", "general"},
		{"unknown", "funnel", "terra", "funnel"},
		{"", "", "terra", "general"},
	}
	for _, tt := range tests {
		l1, l2 := Thread{Category1: tt.c1, Category2: tt.c2}.Categories()
		assert.Equal(t, tt.want1, l1)
		assert.Equal(t, tt.want2, l2)
	}
}

func TestSortFilterGroupThreads(t *testing.T) {
	threads := []Thread{
		{ThreadID: "t-old", Title: "Retention by cohort", CreatedAt: "2025-01-01T10:00:00Z", Category1: "terra", Category2: "retention"},
		{ThreadID: "t-new", Title: "Funnel drop-off", CreatedAt: "2025-03-01T10:00:00Z", Category1: "game", Category2: "funnel"},
		{ThreadID: "t-mid", Title: "Weekly retention", CreatedAt: "2025-02-01T10:00:00Z", Category1: "terra", Category2: "retention"},
	}

	SortThreadsNewestFirst(threads)
	assert.Equal(t, "t-new", threads[0].ThreadID)
	assert.Equal(t, "t-old", threads[2].ThreadID)

	filtered := FilterThreads(threads, "RETENTION")
	require.Len(t, filtered, 2)
	assert.Len(t, FilterThreads(threads, "  "), 3)

	groups := GroupThreads(threads)
	assert.Len(t, groups["terra"]["retention"], 2)
	assert.Len(t, groups["game"]["funnel"], 1)
}

// --- Learning tests ---

func TestGroupLearning(t *testing.T) {
	items := []LearningItem{
		{LearningID: "l1", EventType: LearningPython, Feedback: "wrong axis"},
		{LearningID: "l2", EventType: LearningJQL},
		{LearningID: "l3", EventType: "mystery"},
	}
	grouped := GroupLearning(items)
	assert.Len(t, grouped, 3)
	assert.Len(t, grouped[LearningPython], 1)
	assert.Len(t, grouped[LearningJQL], 1)
	assert.Empty(t, grouped[LearningGenerate])
}

func TestLearningItemPreview(t *testing.T) {
	assert.Equal(t, "fb", LearningItem{Feedback: "fb"}.Preview())
	assert.Equal(t, "q", LearningItem{Conversation: []Turn{{Role: "human", Content: "q"}}}.Preview())
	assert.Equal(t, "No Content", LearningItem{}.Preview())
}

// --- Clock tests ---

func TestParseInstant(t *testing.T) {
	for _, s := range []string{
		"2025-06-01T08:30:00Z",
		"2025-06-01T08:30:00.123456+00:00",
		"2025-06-01T08:30:00.123456",
		"2025-06-01 08:30:00",
	} {
		ts, ok := ParseInstant(s)
		require.True(t, ok, s)
		assert.Equal(t, 8, ts.UTC().Hour(), s)
	}
	_, ok := ParseInstant("yesterday")
	assert.False(t, ok)
}

func TestClockFormat(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	c := NewClock("Asia/Kolkata", "15:04:05").WithNow(func() time.Time { return fixed })

	assert.Equal(t, "14:00:00", c.Format(fixed))
	assert.Equal(t, "14:00:00", c.FormatNow())
	assert.Equal(t, "14:00:00", c.FormatInstant("2025-06-01T08:30:00Z"))
	assert.Equal(t, "14:00:00", c.FormatInstant("not a time"))
}

func TestClockISO(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	c := NewClock("UTC", "").WithNow(func() time.Time { return fixed })

	assert.Equal(t, "2025-06-01T08:30:00Z", c.ISO("garbage"))
	assert.Equal(t, "2025-06-01T03:00:00Z", c.ISO("2025-06-01T08:30:00+05:30"))
}

func TestClockUnknownZone(t *testing.T) {
	c := NewClock("Nowhere/Special", "15:04")
	assert.Equal(t, "08:30", c.Format(time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)))
}

func TestUserFirstName(t *testing.T) {
	assert.Equal(t, "Asha", User{Username: "Asha Rao"}.FirstName())
	assert.Equal(t, "Unknown", User{Username: "  "}.FirstName())

	users := []User{{UserID: "u1", Username: "Asha Rao"}, {UserID: "u2", Username: "Ben"}}
	u, ok := FindUser(users, "u2")
	assert.True(t, ok)
	assert.Equal(t, "Ben", u.FirstName())
	_, ok = FindUser(users, "u3")
	assert.False(t, ok)
}
