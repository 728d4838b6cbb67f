package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// KVSet stores a key/value pair, replacing any existing value.
func (db *DB) KVSet(key, value string) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().UTC(),
	)
	return err
}

// KVGet returns the value for a key, or ErrNotFound.
func (db *DB) KVGet(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// KVDelete removes a key. Deleting an absent key returns ErrNotFound.
func (db *DB) KVDelete(key string) error {
	result, err := db.Exec("DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// KVList returns all key/value pairs whose key starts with prefix.
func (db *DB) KVList(prefix string) (map[string]string, error) {
	rows, err := db.Query(
		"SELECT key, value FROM kv_store WHERE key LIKE ? || '%'",
		prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

const disabledPrefix = "plugin.disabled."

// DisabledIDs returns the IDs of plugins persisted as disabled. Implements
// the plugin manager's StateStore.
func (db *DB) DisabledIDs() ([]string, error) {
	pairs, err := db.KVList(disabledPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pairs))
	for key := range pairs {
		ids = append(ids, strings.TrimPrefix(key, disabledPrefix))
	}
	return ids, nil
}

// SetDisabled records or clears a plugin's persisted disabled state.
func (db *DB) SetDisabled(id string, disabled bool) error {
	key := disabledPrefix + id
	if disabled {
		return db.KVSet(key, "1")
	}
	err := db.KVDelete(key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

const activitySnapshotKey = "activity.snapshot"

// SaveActivitySnapshot persists the aggregator's serialized bucket state.
func (db *DB) SaveActivitySnapshot(data []byte) error {
	return db.KVSet(activitySnapshotKey, string(data))
}

// LoadActivitySnapshot returns the persisted bucket state, or ErrNotFound.
func (db *DB) LoadActivitySnapshot() ([]byte, error) {
	value, err := db.KVGet(activitySnapshotKey)
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}
