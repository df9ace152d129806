package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/querydesk/internal/domain"
)

// TranscriptInfo summarises one cached transcript.
type TranscriptInfo struct {
	ThreadID     string    `json:"threadId"`
	Platform     string    `json:"platform"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SearchHit is a cached message matching a full-text query.
type SearchHit struct {
	ThreadID  string      `json:"threadId"`
	MessageID string      `json:"messageId"`
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
	Rank      float64     `json:"rank"`
}

// TranscriptStore caches the message log of each thread so history can be
// read without the backend, and searched with SQLite FTS5.
type TranscriptStore struct {
	db *DB
}

// NewTranscriptStore creates a transcript store using the given database.
func NewTranscriptStore(db *DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Save replaces the cached transcript of threadID with msgs.
func (s *TranscriptStore) Save(threadID, platform string, msgs []domain.Message) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.DateTime)
	if _, err := tx.Exec(
		`INSERT INTO transcripts (thread_id, platform, message_count, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   platform = excluded.platform,
		   message_count = excluded.message_count,
		   updated_at = excluded.updated_at`,
		threadID, platform, len(msgs), now,
	); err != nil {
		return fmt.Errorf("saving transcript %s: %w", threadID, err)
	}
	if _, err := tx.Exec(`DELETE FROM transcript_messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("clearing transcript %s: %w", threadID, err)
	}

	for i, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding message %s: %w", m.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO transcript_messages (thread_id, position, message_id, role, content, timestamp, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			threadID, i, m.ID, string(m.Role), m.Content, m.Timestamp, string(payload),
		); err != nil {
			return fmt.Errorf("saving message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Load returns the cached transcript of threadID in log order. A thread
// with no cache yields an empty slice.
func (s *TranscriptStore) Load(threadID string) ([]domain.Message, error) {
	rows, err := s.db.sql.Query(
		`SELECT payload FROM transcript_messages WHERE thread_id = ? ORDER BY position`, threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			s.db.log.Warn().Err(err).Str("threadId", threadID).Msg("skipping corrupt cached message")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// List returns every cached transcript, most recently saved first.
func (s *TranscriptStore) List() ([]TranscriptInfo, error) {
	rows, err := s.db.sql.Query(
		`SELECT thread_id, platform, message_count, updated_at FROM transcripts ORDER BY updated_at DESC, thread_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TranscriptInfo
	for rows.Next() {
		var info TranscriptInfo
		var updatedAt string
		if err := rows.Scan(&info.ThreadID, &info.Platform, &info.MessageCount, &updatedAt); err != nil {
			return nil, err
		}
		info.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete drops the cached transcript of threadID. Its messages and their
// index entries go with it.
func (s *TranscriptStore) Delete(threadID string) error {
	_, err := s.db.sql.Exec(`DELETE FROM transcripts WHERE thread_id = ?`, threadID)
	return err
}

// Search finds cached messages containing query as a phrase, ranked by
// relevance. Limit of 0 defaults to 20.
func (s *TranscriptStore) Search(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`

	rows, err := s.db.sql.Query(
		`SELECT tm.thread_id, tm.message_id, tm.role, tm.content, tm.timestamp, rank
		 FROM transcript_fts
		 JOIN transcript_messages tm ON tm.id = transcript_fts.rowid
		 WHERE transcript_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		phrase, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var role string
		if err := rows.Scan(&h.ThreadID, &h.MessageID, &role, &h.Content, &h.Timestamp, &h.Rank); err != nil {
			return nil, err
		}
		h.Role = domain.Role(role)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
