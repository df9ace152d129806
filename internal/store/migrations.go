package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create local state",
		SQL: `
			CREATE TABLE local_state (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create transcripts with FTS5",
		SQL: `
			CREATE TABLE transcripts (
				thread_id      TEXT PRIMARY KEY,
				platform       TEXT NOT NULL DEFAULT '',
				message_count  INTEGER NOT NULL DEFAULT 0,
				updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE transcript_messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id   TEXT NOT NULL REFERENCES transcripts(thread_id) ON DELETE CASCADE,
				position    INTEGER NOT NULL,
				message_id  TEXT NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL DEFAULT '',
				payload     TEXT NOT NULL
			);

			CREATE INDEX idx_transcript_messages_thread ON transcript_messages (thread_id, position);

			CREATE VIRTUAL TABLE transcript_fts USING fts5(
				content,
				content='transcript_messages',
				content_rowid='id'
			);

			CREATE TRIGGER transcript_ai AFTER INSERT ON transcript_messages BEGIN
				INSERT INTO transcript_fts(rowid, content) VALUES (new.id, new.content);
			END;

			CREATE TRIGGER transcript_ad AFTER DELETE ON transcript_messages BEGIN
				INSERT INTO transcript_fts(transcript_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
			END;
		`,
	},
}
