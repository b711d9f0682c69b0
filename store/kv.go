package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const tombstonePartition = "tombstone"

// SetValue stores a small string value, e.g. a sync cursor.
func (db *DB) SetValue(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO kv (partition, key, value, updated_at)
		VALUES ('', ?, ?, ?)
		ON CONFLICT(partition, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("%w: set kv %s: %v", ErrStorage, key, err)
	}
	return nil
}

// GetValue returns a stored value, or ErrNotFound.
func (db *DB) GetValue(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE partition = '' AND key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: get kv %s: %v", ErrStorage, key, err)
	}
	return value, nil
}

// DeleteValue removes a stored value.
func (db *DB) DeleteValue(key string) error {
	_, err := db.Exec(`DELETE FROM kv WHERE partition = '' AND key = ?`, key)
	if err != nil {
		return fmt.Errorf("%w: delete kv %s: %v", ErrStorage, key, err)
	}
	return nil
}

// SetTombstone records a removed conversation so a racing sync page
// cannot resurrect it within the tombstone TTL.
func (db *DB) SetTombstone(topicID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO kv (partition, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(partition, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		tombstonePartition, topicID, strconv.FormatInt(now, 10), now)
	if err != nil {
		return fmt.Errorf("%w: set tombstone %s: %v", ErrStorage, topicID, err)
	}
	return nil
}

// HasTombstone reports whether the conversation was removed within ttl.
func (db *DB) HasTombstone(topicID string, ttl time.Duration) (bool, error) {
	var at int64
	err := db.QueryRow(`SELECT updated_at FROM kv WHERE partition = ? AND key = ?`,
		tombstonePartition, topicID).Scan(&at)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get tombstone %s: %v", ErrStorage, topicID, err)
	}
	return !IsCacheExpired(at, ttl), nil
}
