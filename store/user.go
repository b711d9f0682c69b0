package store

import (
	"errors"
	"time"

	"github.com/matheus3301/chatkit/models"
)

const userPartition = ""

func (db *DB) users() *Table[models.User, *models.User] {
	return NewTable[models.User, *models.User](db, "users")
}

// GetUser returns the cached user record, or ErrNotFound.
func (db *DB) GetUser(userID string) (*models.User, error) {
	return db.users().Get(userPartition, userID)
}

// SaveUser writes a server-confirmed user record.
func (db *DB) SaveUser(u *models.User) error {
	u.CachedAt = time.Now().UnixMilli()
	u.IsPartial = false
	return db.users().Set(userPartition, u.UserID, u)
}

// SaveUserStub caches a partial user seen only through message frames.
// An existing confirmed record is never downgraded.
func (db *DB) SaveUserStub(u *models.User) error {
	old, err := db.users().Get(userPartition, u.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if old != nil && !old.IsPartial {
		return nil
	}
	u.CachedAt = time.Now().UnixMilli()
	u.IsPartial = true
	return db.users().Set(userPartition, u.UserID, u)
}

// UpdateUser applies mutate to the stored user (a partial stub is
// created when none exists) and persists the result.
func (db *DB) UpdateUser(userID string, mutate func(*models.User)) (*models.User, error) {
	t := db.users()
	u, err := t.Get(userPartition, userID)
	if errors.Is(err, ErrNotFound) {
		u = &models.User{UserID: userID, IsPartial: true}
		err = nil
	}
	if err != nil {
		return nil, err
	}
	mutate(u)
	u.CachedAt = time.Now().UnixMilli()
	if err := t.Set(userPartition, userID, u); err != nil {
		return nil, err
	}
	return u, nil
}
