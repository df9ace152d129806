package store

import (
	"path/filepath"
	"testing"

	"github.com/soyeahso/querydesk/internal/domain"
	"github.com/soyeahso/querydesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, NewStateStore(db).Set(KeyUserID, "u1"))
	require.NoError(t, db.Close())

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	v, ok, err := NewStateStore(db).Get(KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"local_state", "transcripts", "transcript_messages", "transcript_fts"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- StateStore tests ---

func TestStateStore_GetMissing(t *testing.T) {
	s := NewStateStore(testDB(t))

	v, ok, err := s.Get(KeyPlatform)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, "terra", s.GetOr(KeyPlatform, "terra"))
}

func TestStateStore_SetOverwrites(t *testing.T) {
	s := NewStateStore(testDB(t))

	require.NoError(t, s.Set(KeyPlatform, "terra"))
	require.NoError(t, s.Set(KeyPlatform, "ai_games"))

	assert.Equal(t, "ai_games", s.GetOr(KeyPlatform, "terra"))
}

func TestStateStore_SetAllAndDelete(t *testing.T) {
	s := NewStateStore(testDB(t))

	require.NoError(t, s.SetAll(map[string]string{
		KeyUserID: "u1",
		KeyName:   "Asha",
		KeyEmail:  "asha@example.com",
	}))
	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeyUserID: "u1", KeyName: "Asha", KeyEmail: "asha@example.com"}, all)

	require.NoError(t, s.Delete(KeyEmail))
	_, ok, err := s.Get(KeyEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- TranscriptStore tests ---

func sampleTranscript() []domain.Message {
	return []domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "weekly retention for new players", Timestamp: "10:00:00", Node: "verify_info"},
		{ID: "a1", Role: domain.RoleAssistant, Content: "Here is the retention funnel", Timestamp: "10:00:05",
			Attachments: []domain.Attachment{{Type: domain.AttachmentImage, URL: "data:image/png;base64,AAA"}}},
		{ID: "m2", Role: domain.RoleUser, Content: "split by country", Timestamp: "10:01:00"},
	}
}

func TestTranscriptStore_SaveLoad(t *testing.T) {
	s := NewTranscriptStore(testDB(t))
	msgs := sampleTranscript()

	require.NoError(t, s.Save("t1", "terra", msgs))

	loaded, err := s.Load("t1")
	require.NoError(t, err)
	assert.Equal(t, msgs, loaded)
}

func TestTranscriptStore_LoadMissing(t *testing.T) {
	s := NewTranscriptStore(testDB(t))

	loaded, err := s.Load("nope")
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.NotNil(t, loaded)
}

func TestTranscriptStore_SaveReplaces(t *testing.T) {
	s := NewTranscriptStore(testDB(t))
	require.NoError(t, s.Save("t1", "terra", sampleTranscript()))

	edited := sampleTranscript()[:1]
	edited[0].Content = "monthly retention"
	require.NoError(t, s.Save("t1", "terra", edited))

	loaded, err := s.Load("t1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "monthly retention", loaded[0].Content)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].MessageCount)
	assert.Equal(t, "terra", infos[0].Platform)

	hits, err := s.Search("weekly", 0)
	require.NoError(t, err)
	assert.Empty(t, hits, "replaced content leaves the index")
}

func TestTranscriptStore_Search(t *testing.T) {
	s := NewTranscriptStore(testDB(t))
	require.NoError(t, s.Save("t1", "terra", sampleTranscript()))
	require.NoError(t, s.Save("t2", "ai_games", []domain.Message{
		{ID: "x1", Role: domain.RoleUser, Content: "retention by level", Timestamp: "11:00:00"},
	}))

	hits, err := s.Search("retention", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = s.Search(`country"`, 10)
	require.NoError(t, err, "quotes in the query are escaped")
	require.Len(t, hits, 1)
	assert.Equal(t, "m2", hits[0].MessageID)

	hits, err = s.Search("churn", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Search("by country", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t1", hits[0].ThreadID)
	assert.Equal(t, "m2", hits[0].MessageID)
	assert.Equal(t, domain.RoleUser, hits[0].Role)
}

func TestTranscriptStore_Delete(t *testing.T) {
	db := testDB(t)
	s := NewTranscriptStore(db)
	require.NoError(t, s.Save("t1", "terra", sampleTranscript()))

	require.NoError(t, s.Delete("t1"))

	loaded, err := s.Load("t1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM transcript_messages").Scan(&count))
	assert.Equal(t, 0, count)

	hits, err := s.Search("retention", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestOpen_ForeignKeysOnEveryConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path())

	for range 3 {
		var on int
		require.NoError(t, db.SQL().QueryRow("PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on)
	}
}
