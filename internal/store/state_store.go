package store

import (
	"database/sql"
	"errors"
	"time"
)

// Keys of the local state table.
const (
	KeyUserID   = "userId"
	KeyName     = "name"
	KeyEmail    = "email"
	KeyPlatform = "platform"
	KeyThreadID = "threadId"
)

// StateStore is a small key/value table for values that outlive a run.
type StateStore struct {
	db *DB
}

// NewStateStore creates a state store using the given database.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// Get returns the value stored under key.
func (s *StateStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.sql.QueryRow(`SELECT value FROM local_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetOr returns the value stored under key, or def when it is missing or
// cannot be read.
func (s *StateStore) GetOr(key, def string) string {
	v, ok, err := s.Get(key)
	if err != nil {
		s.db.log.Warn().Err(err).Str("key", key).Msg("reading local state")
		return def
	}
	if !ok {
		return def
	}
	return v
}

// Set stores value under key.
func (s *StateStore) Set(key, value string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO local_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.DateTime),
	)
	return err
}

// SetAll stores several values in one transaction.
func (s *StateStore) SetAll(values map[string]string) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.DateTime)
	for k, v := range values {
		if _, err := tx.Exec(
			`INSERT INTO local_state (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Delete removes key.
func (s *StateStore) Delete(key string) error {
	_, err := s.db.sql.Exec(`DELETE FROM local_state WHERE key = ?`, key)
	return err
}

// All returns every stored value.
func (s *StateStore) All() (map[string]string, error) {
	rows, err := s.db.sql.Query(`SELECT key, value FROM local_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
