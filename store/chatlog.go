package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/chatkit/models"
)

func (db *DB) chatLogs() *Table[models.ChatLog, *models.ChatLog] {
	return NewTable[models.ChatLog, *models.ChatLog](db, "chat_logs")
}

// GetChatLog returns one log row by topic and message id.
func (db *DB) GetChatLog(topicID, id string) (*models.ChatLog, error) {
	return db.chatLogs().Get(topicID, id)
}

// SaveChatLog upserts one log row. Rows are keyed by message id within
// the topic partition and indexed by seq, so re-applying a sync page is
// idempotent: an incoming record with a known id overwrites in place.
func (db *DB) SaveChatLog(log *models.ChatLog) error {
	log.CachedAt = time.Now().UnixMilli()
	return db.chatLogs().Set(log.TopicID, log.ID, log)
}

// SaveChatLogs bulk-imports a batch of log rows in one transaction.
func (db *DB) SaveChatLogs(logs []*models.ChatLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, log := range logs {
		log.CachedAt = now
		raw, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("%w: encode chat log %s: %v", ErrStorage, log.ID, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO chat_logs (partition, key, value, sort_by)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(partition, key) DO UPDATE SET
				value = excluded.value,
				sort_by = excluded.sort_by`,
			log.TopicID, log.ID, string(raw), log.Seq); err != nil {
			return fmt.Errorf("%w: upsert chat log %s: %v", ErrStorage, log.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit batch: %v", ErrStorage, err)
	}
	return nil
}

// UpdateChatLogSent promotes a pending row to sent with its
// server-assigned seq.
func (db *DB) UpdateChatLogSent(topicID, id string, seq int64) error {
	t := db.chatLogs()
	log, err := t.Get(topicID, id)
	if err != nil {
		return err
	}
	log.Seq = seq
	log.Status = models.ChatLogStatusSent
	return t.Set(topicID, id, log)
}

// UpdateChatLogFailed marks a pending row failed.
func (db *DB) UpdateChatLogFailed(topicID, id string) error {
	t := db.chatLogs()
	log, err := t.Get(topicID, id)
	if err != nil {
		return err
	}
	log.Status = models.ChatLogStatusFailed
	return t.Set(topicID, id, log)
}

// ApplyRecall replaces the target message's content with the recall
// marker. The row keeps its id and seq; only the payload changes.
func (db *DB) ApplyRecall(topicID, targetID string) error {
	t := db.chatLogs()
	log, err := t.Get(topicID, targetID)
	if err != nil {
		return err
	}
	log.Recall = true
	log.Content = models.NewRecallContent(targetID)
	log.CachedAt = time.Now().UnixMilli()
	return t.Set(topicID, targetID, log)
}

// MergeChatLogExtra merges keys into the target message's extra without
// touching its content.
func (db *DB) MergeChatLogExtra(topicID, id string, extra map[string]any) error {
	t := db.chatLogs()
	log, err := t.Get(topicID, id)
	if err != nil {
		return err
	}
	log.Extra = mergeExtra(log.Extra, extra)
	log.CachedAt = time.Now().UnixMilli()
	return t.Set(topicID, id, log)
}

// QueryChatLogs returns one page of a topic's log by seq descending,
// bounded above (exclusively) by lastSeq. Zero starts from the newest.
func (db *DB) QueryChatLogs(topicID string, lastSeq int64, limit int) ([]*models.ChatLog, error) {
	r, err := db.chatLogs().Query(topicID, QueryOption{
		StartSortValue: lastSeq,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	return r.Items, nil
}

// LastChatLogSeq returns the highest seq stored for a topic, zero when
// the topic has no rows.
func (db *DB) LastChatLogSeq(topicID string) (int64, error) {
	log, err := db.chatLogs().Last(topicID)
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return log.Seq, nil
}
