package store

import (
	"time"

	"github.com/matheus3301/chatkit/models"
)

const topicPartition = ""

func (db *DB) topics() *Table[models.Topic, *models.Topic] {
	return NewTable[models.Topic, *models.Topic](db, "topics")
}

// GetTopic returns the cached topic record, or ErrNotFound.
func (db *DB) GetTopic(topicID string) (*models.Topic, error) {
	return db.topics().Get(topicPartition, topicID)
}

// SaveTopic writes a server-confirmed topic record.
func (db *DB) SaveTopic(t *models.Topic) error {
	t.CachedAt = time.Now().UnixMilli()
	return db.topics().Set(topicPartition, t.ID, t)
}

// RemoveTopic deletes a topic record, e.g. after a dismiss frame.
func (db *DB) RemoveTopic(topicID string) error {
	return db.topics().Remove(topicPartition, topicID)
}
