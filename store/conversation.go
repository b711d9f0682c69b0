package store

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/chatkit/models"
)

// Conversations are stored under the empty partition; per-category
// views are served by predicate scans over the same index.
const conversationPartition = ""

func (db *DB) conversations() *Table[models.Conversation, *models.Conversation] {
	return NewTable[models.Conversation, *models.Conversation](db, "conversations")
}

// GetConversation returns the cached conversation, or ErrNotFound.
func (db *DB) GetConversation(topicID string) (*models.Conversation, error) {
	return db.conversations().Get(conversationPartition, topicID)
}

// SaveConversation writes the conversation as-is, stamping CachedAt.
func (db *DB) SaveConversation(c *models.Conversation) error {
	c.CachedAt = time.Now().UnixMilli()
	return db.conversations().Set(conversationPartition, c.TopicID, c)
}

// MergeConversation reconciles a server-confirmed record with the
// stored copy. Fields are last-writer-wins except tags (whole-list
// replace only when the incoming record carries one) and extra
// (per-key merge). When the stored copy is ahead by lastSeq, the
// denormalized last-message fields and local flags are preserved.
func (db *DB) MergeConversation(incoming *models.Conversation) (*models.Conversation, error) {
	t := db.conversations()
	merged := *incoming

	old, err := t.Get(conversationPartition, incoming.TopicID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if old != nil {
		if old.LastSeq > merged.LastSeq {
			merged.LastSeq = old.LastSeq
			merged.LastSenderID = old.LastSenderID
			merged.LastMessage = old.LastMessage
			merged.LastMessageAt = old.LastMessageAt
		}
		if merged.LastReadSeq < old.LastReadSeq {
			merged.LastReadSeq = old.LastReadSeq
		}
		// UpdatedAt never decreases across confirmed updates.
		if merged.UpdatedAt < old.UpdatedAt {
			merged.UpdatedAt = old.UpdatedAt
		}
		if merged.Tags == nil {
			merged.Tags = old.Tags
		}
		merged.Extra = mergeExtra(old.Extra, incoming.Extra)
	}

	merged.IsPartial = false
	merged.CachedAt = time.Now().UnixMilli()
	merged.Unread = max(merged.LastSeq-merged.LastReadSeq, 0)

	if err := t.Set(conversationPartition, merged.TopicID, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func mergeExtra(old, incoming map[string]any) map[string]any {
	if incoming == nil {
		return old
	}
	if old == nil {
		return incoming
	}
	merged := make(map[string]any, len(old)+len(incoming))
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// UpdateConversation applies mutate to the stored conversation (a
// partial stub is created when none exists) and persists the result.
func (db *DB) UpdateConversation(topicID string, mutate func(*models.Conversation)) (*models.Conversation, error) {
	t := db.conversations()
	c, err := t.Get(conversationPartition, topicID)
	if errors.Is(err, ErrNotFound) {
		c = &models.Conversation{TopicID: topicID, IsPartial: true}
		err = nil
	}
	if err != nil {
		return nil, err
	}
	mutate(c)
	c.Unread = max(c.LastSeq-c.LastReadSeq, 0)
	c.CachedAt = time.Now().UnixMilli()
	if err := t.Set(conversationPartition, topicID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyChatToConversation folds an inbound chat frame into the topic's
// conversation: lastSeq, denormalized last message and the sync cursor
// advance together in one row write so readers never observe a torn
// update.
func (db *DB) ApplyChatToConversation(req *models.ChatRequest, countUnread bool) (*models.Conversation, error) {
	t := db.conversations()
	c, err := t.Get(conversationPartition, req.TopicID)
	if errors.Is(err, ErrNotFound) {
		c = models.ConversationFromRequest(req)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if req.Seq > 0 && req.Seq >= c.LastSeq {
		c.LastSeq = req.Seq
		c.LastSenderID = req.Attendee
		c.LastMessage = req.Content
		c.LastMessageAt = req.CreatedAt
		if req.CreatedAt > c.UpdatedAt {
			c.UpdatedAt = req.CreatedAt
		}
	}
	if !countUnread {
		c.LastReadSeq = c.LastSeq
	}
	c.Unread = max(c.LastSeq-c.LastReadSeq, 0)
	c.CachedAt = time.Now().UnixMilli()

	if err := t.Set(conversationPartition, c.TopicID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetConversationRead zeroes unread accounting for a topic.
func (db *DB) SetConversationRead(topicID string) (*models.Conversation, error) {
	return db.UpdateConversation(topicID, func(c *models.Conversation) {
		c.LastReadSeq = c.LastSeq
	})
}

// RemoveConversation deletes the row and leaves a short-lived tombstone
// so a concurrent sync page cannot resurrect it.
func (db *DB) RemoveConversation(topicID string) error {
	if err := db.conversations().Remove(conversationPartition, topicID); err != nil {
		return err
	}
	return db.SetTombstone(topicID)
}

// QueryConversations returns one page of conversations by UpdatedAt
// descending, bounded above (exclusively) by cursor. Zero cursor starts
// from the newest.
func (db *DB) QueryConversations(cursor int64, limit int) ([]*models.Conversation, error) {
	r, err := db.conversations().Query(conversationPartition, QueryOption{
		StartSortValue: cursor,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	return r.Items, nil
}

// FilterConversations scans by UpdatedAt descending applying predicate,
// honoring ctx cancellation per row.
func (db *DB) FilterConversations(ctx context.Context, cursor int64, limit int, predicate func(*models.Conversation) bool) ([]*models.Conversation, error) {
	return db.conversations().Filter(ctx, conversationPartition, QueryOption{
		StartSortValue: cursor,
		Limit:          limit,
	}, predicate)
}

// UnreadTotal sums unread counts across all conversations.
func (db *DB) UnreadTotal(ctx context.Context) (int64, error) {
	var total int64
	_, err := db.conversations().Filter(ctx, conversationPartition, QueryOption{Limit: 1 << 30}, func(c *models.Conversation) bool {
		total += c.Unread
		return false
	})
	return total, err
}

// PruneConversations trims the list to the configured cap, dropping the
// least recently updated rows first.
func (db *DB) PruneConversations(maxCount int) error {
	if maxCount <= 0 {
		return nil
	}
	_, err := db.Exec(`
		DELETE FROM conversations WHERE partition = ? AND key IN (
			SELECT key FROM conversations WHERE partition = ?
			ORDER BY sort_by DESC LIMIT -1 OFFSET ?
		)`, conversationPartition, conversationPartition, maxCount)
	if err != nil {
		return err
	}
	return nil
}
