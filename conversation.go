package chatkit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatkit/bus"
	"github.com/matheus3301/chatkit/models"
	"github.com/matheus3301/chatkit/store"
)

// kv keys for persisted sync cursors.
const (
	kvConversationsSyncAt    = "conversations_sync_at"
	kvConversationsRemovedAt = "conversations_removed_at"
)

// SyncOption tunes one conversation sync run.
type SyncOption struct {
	// Limit is the page size; zero uses the configured default.
	Limit int
	// MaxCount caps how many conversations one run pulls in total;
	// zero uses the configured retention cap.
	MaxCount int
	// Category restricts the sync to one conversation category.
	Category string
	// Full ignores the persisted cursor and re-pulls everything.
	Full bool
	// SyncLogs prefetches each merged conversation's recent chat logs
	// so topics open instantly after a cold sync.
	SyncLogs bool
	// SyncLogsLimit is the prefetch page size; zero uses the
	// configured log page size.
	SyncLogsLimit int
	// SyncLogsMaxCount caps the prefetch per topic; zero uses the
	// configured prefetch ceiling.
	SyncLogsMaxCount int
	// OnError receives the failure when a page request errors. The
	// engine does not auto-resume; re-invoke to continue.
	OnError func(err error)
}

// SyncConversations pulls conversation pages from the server until a
// short page signals convergence, merging each page into the local
// cache and batching one OnConversationsUpdated per page.
func (c *Client) SyncConversations(ctx context.Context, opt *SyncOption) error {
	if opt == nil {
		opt = &SyncOption{}
	}
	limit := opt.Limit
	if limit <= 0 {
		limit = c.cfg.Sync.ConversationsPerPage
	}
	maxCount := opt.MaxCount
	if maxCount <= 0 {
		maxCount = c.cfg.Cache.MaxConversations
	}
	logsLimit := opt.SyncLogsLimit
	if logsLimit <= 0 {
		logsLimit = c.cfg.Sync.LogsPerPage
	}
	logsMaxCount := opt.SyncLogsMaxCount
	if logsMaxCount <= 0 {
		logsMaxCount = c.cfg.Sync.PrefetchLogsMaxCount
	}

	var cursor, removedAt int64
	if !opt.Full {
		cursor = c.loadCursor(kvConversationsSyncAt)
		removedAt = c.loadCursor(kvConversationsRemovedAt)
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := c.api.listConversations(ctx, conversationListRequest{
			UpdatedAt:        cursor,
			LastRemovedAt:    removedAt,
			Limit:            limit,
			Category:         opt.Category,
			SyncLogs:         opt.SyncLogs,
			SyncLogsLimit:    logsLimit,
			SyncLogsMaxCount: logsMaxCount,
			SyncMaxCount:     maxCount,
		})
		if err != nil {
			c.logger.Warn("conversation sync page failed", zap.Error(err))
			if opt.OnError != nil {
				opt.OnError(err)
			}
			return err
		}

		updated := make([]*models.Conversation, 0, len(page.Items))
		for _, incoming := range page.Items {
			// A conversation removed moments ago may still ride in on
			// a stale page; the tombstone keeps it dead.
			if dead, terr := c.db.HasTombstone(incoming.TopicID, c.cfg.Cache.RemovedTTL()); terr == nil && dead {
				continue
			}
			merged, err := c.db.MergeConversation(incoming)
			if err != nil {
				c.logger.Warn("merge conversation",
					zap.String("topic", incoming.TopicID),
					zap.Error(err))
				continue
			}
			updated = append(updated, merged)
			if merged.UpdatedAt > cursor {
				cursor = merged.UpdatedAt
			}
		}
		if len(updated) > 0 {
			c.emitConversationsUpdated(updated)
			total += len(updated)
		}
		if opt.SyncLogs {
			for _, conv := range updated {
				if _, lerr := c.SyncChatLogs(ctx, conv.TopicID, 0, &SyncLogsOption{
					Limit:    logsLimit,
					MaxCount: logsMaxCount,
				}); lerr != nil {
					// Prefetch is best-effort; the topic syncs again
					// when opened.
					c.logger.Warn("log prefetch failed",
						zap.String("topic", conv.TopicID),
						zap.Error(lerr))
				}
			}
		}
		if len(page.Removed) > 0 {
			c.handleConversationsRemoved(page.Removed)
			removedAt = time.Now().UnixMilli()
		}
		if page.UpdatedAt > cursor {
			cursor = page.UpdatedAt
		}
		c.saveCursor(kvConversationsSyncAt, cursor)
		c.saveCursor(kvConversationsRemovedAt, removedAt)

		// A short page means the server has nothing newer; the total
		// ceiling stops runaway histories.
		if page.Count < limit || total >= maxCount {
			break
		}
	}

	if err := c.db.PruneConversations(c.cfg.Cache.MaxConversations); err != nil {
		c.logger.Warn("prune conversations", zap.Error(err))
	}
	return nil
}

// SyncLogsOption tunes one chat log sync run.
type SyncLogsOption struct {
	// Limit is the page size; zero uses the configured default.
	Limit int
	// MaxCount bounds the total rows pulled; zero uses the default.
	MaxCount int
	OnError  func(err error)
}

// SyncChatLogs pulls a topic's log pages backwards from lastSeq (zero
// means the newest page) until hasMore clears or MaxCount is reached.
// Pages merge idempotently by seq, so recalls and extra updates done
// while offline converge here.
func (c *Client) SyncChatLogs(ctx context.Context, topicID string, lastSeq int64, opt *SyncLogsOption) ([]*models.ChatLog, error) {
	if opt == nil {
		opt = &SyncLogsOption{}
	}
	limit := opt.Limit
	if limit <= 0 {
		limit = c.cfg.Sync.LogsPerPage
	}
	maxCount := opt.MaxCount
	if maxCount <= 0 {
		maxCount = c.cfg.Sync.LogsMaxCount
	}

	var collected []*models.ChatLog
	cursor := lastSeq
	for {
		if err := ctx.Err(); err != nil {
			return collected, err
		}
		page, err := c.api.syncChatLogs(ctx, chatLogSyncRequest{
			TopicID: topicID,
			LastSeq: cursor,
			Limit:   limit,
		})
		if err != nil {
			c.logger.Warn("chat log sync page failed",
				zap.String("topic", topicID),
				zap.Error(err))
			if opt.OnError != nil {
				opt.OnError(err)
			}
			return collected, err
		}
		for _, log := range page.Items {
			log.TopicID = topicID
		}
		c.stampSynced(page.Items)
		if err := c.db.SaveChatLogs(page.Items); err != nil {
			if opt.OnError != nil {
				opt.OnError(err)
			}
			return collected, err
		}
		collected = append(collected, page.Items...)
		// A page that moves no cursor would loop forever; treat it as
		// the end regardless of hasMore.
		if len(page.Items) == 0 || page.LastSeq <= 0 || (cursor > 0 && page.LastSeq >= cursor) {
			break
		}
		cursor = page.LastSeq
		if !page.HasMore || len(collected) >= maxCount {
			break
		}
	}
	return collected, nil
}

// stampSynced marks server-delivered rows as confirmed. Server records
// carry no local status, and the zero value is Sending; without the
// stamp a resync would downgrade acked rows back to in-flight.
func (c *Client) stampSynced(logs []*models.ChatLog) {
	for _, log := range logs {
		if log.Status != models.ChatLogStatusSending {
			continue
		}
		if log.SenderID == c.info.UserID {
			log.Status = models.ChatLogStatusSent
		} else {
			log.Status = models.ChatLogStatusReceived
		}
	}
}

// SaveChatLogs bulk-imports log rows into the local cache, e.g. for
// preloading. Rows merge idempotently by (topic, seq).
func (c *Client) SaveChatLogs(logs []*models.ChatLog) error {
	c.stampSynced(logs)
	return c.db.SaveChatLogs(logs)
}

// GetChatLogs reads a topic's cached log page ordered by seq
// descending, bounded above by lastSeq (zero means newest).
func (c *Client) GetChatLogs(topicID string, lastSeq int64, limit int) ([]*models.ChatLog, error) {
	if limit <= 0 {
		limit = c.cfg.Sync.LogsPerPage
	}
	return c.db.QueryChatLogs(topicID, lastSeq, limit)
}

// GetConversation returns the cached conversation when fresh. On a miss
// or TTL expiry: blocking fetches from the server before returning;
// non-blocking returns what is cached (a partial stub if nothing is)
// and refreshes in the background.
func (c *Client) GetConversation(ctx context.Context, topicID string, blocking bool) (*models.Conversation, error) {
	cached, err := c.db.GetConversation(topicID)
	if err == nil && !cached.IsPartial &&
		!store.IsCacheExpired(cached.CachedAt, c.cfg.Cache.ConversationTTL()) {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if blocking {
		fetched, ferr := c.fetchConversation(ctx, topicID)
		if ferr != nil {
			// Offline: a cached stub beats an outright failure.
			if cached != nil {
				return cached, nil
			}
			return nil, ferr
		}
		return fetched, nil
	}

	if cached == nil {
		cached = &models.Conversation{TopicID: topicID, IsPartial: true}
		if serr := c.db.SaveConversation(cached); serr != nil {
			return nil, serr
		}
	}
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, ferr := c.fetchConversation(refreshCtx, topicID); ferr != nil {
			c.logger.Debug("background conversation refresh failed",
				zap.String("topic", topicID), zap.Error(ferr))
		}
	}()
	return cached, nil
}

func (c *Client) fetchConversation(ctx context.Context, topicID string) (*models.Conversation, error) {
	fetched, err := c.api.getConversationInfo(ctx, topicID)
	if err != nil {
		return nil, err
	}
	merged, err := c.db.MergeConversation(fetched)
	if err != nil {
		return nil, err
	}
	c.emitConversationsUpdated([]*models.Conversation{merged})
	return merged, nil
}

// FilterConversation scans cached conversations newest-first, applying
// predicate to each row. cursor is an exclusive updatedAt upper bound
// (zero starts from the newest); the scan honors ctx cancellation
// between rows.
func (c *Client) FilterConversation(ctx context.Context, predicate func(*models.Conversation) bool, cursor int64, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = c.cfg.Sync.ConversationsPerPage
	}
	return c.db.FilterConversations(ctx, cursor, limit, predicate)
}

// RemoveConversation deletes the conversation on the server and
// locally, leaving a short-lived tombstone so a concurrent sync page
// cannot resurrect it.
func (c *Client) RemoveConversation(ctx context.Context, topicID string) error {
	if err := c.api.removeConversation(ctx, topicID); err != nil {
		return err
	}
	if err := c.db.RemoveConversation(topicID); err != nil {
		return err
	}
	c.emitConversationsRemoved([]string{topicID})
	return nil
}

// SetConversationSticky pins or unpins a conversation.
func (c *Client) SetConversationSticky(ctx context.Context, topicID string, sticky bool) error {
	return c.updateConversationField(ctx, topicID,
		map[string]any{"sticky": sticky},
		func(conv *models.Conversation) { conv.Sticky = sticky })
}

// SetConversationMute silences or unmutes notifications.
func (c *Client) SetConversationMute(ctx context.Context, topicID string, mute bool) error {
	return c.updateConversationField(ctx, topicID,
		map[string]any{"mute": mute},
		func(conv *models.Conversation) { conv.Mute = mute })
}

// SetConversationRemark sets the local display name override.
func (c *Client) SetConversationRemark(ctx context.Context, topicID, remark string) error {
	return c.updateConversationField(ctx, topicID,
		map[string]any{"remark": remark},
		func(conv *models.Conversation) { conv.Remark = remark })
}

// SetConversationTags replaces the whole ordered tag list.
func (c *Client) SetConversationTags(ctx context.Context, topicID string, tags []models.Tag) error {
	return c.updateConversationField(ctx, topicID,
		map[string]any{"tags": tags},
		func(conv *models.Conversation) { conv.Tags = tags })
}

// SetConversationExtra merges key-value pairs into the conversation's
// extra; existing keys not named survive.
func (c *Client) SetConversationExtra(ctx context.Context, topicID string, extra map[string]any) error {
	return c.updateConversationField(ctx, topicID,
		map[string]any{"extra": extra},
		func(conv *models.Conversation) {
			if conv.Extra == nil {
				conv.Extra = make(map[string]any, len(extra))
			}
			for k, v := range extra {
				conv.Extra[k] = v
			}
		})
}

// SetConversationRead zeroes the unread counter locally and marks the
// topic read on the server. heavy asks the server to also mark every
// log row, which costs more server-side.
func (c *Client) SetConversationRead(ctx context.Context, topicID string, heavy bool) error {
	conv, err := c.db.SetConversationRead(topicID)
	if err != nil {
		return err
	}
	c.emitConversationsUpdated([]*models.Conversation{conv})
	if err := c.api.markConversationRead(ctx, topicID, heavy); err != nil {
		c.logger.Warn("server read mark failed",
			zap.String("topic", topicID), zap.Error(err))
		return err
	}
	return nil
}

// updateConversationField applies a mutation locally, emits the change,
// then pushes it to the server. A server failure is returned but the
// local state is kept; the next sync reconciles.
func (c *Client) updateConversationField(ctx context.Context, topicID string, values map[string]any, mutate func(*models.Conversation)) error {
	conv, err := c.db.UpdateConversation(topicID, mutate)
	if err != nil {
		return err
	}
	c.emitConversationsUpdated([]*models.Conversation{conv})
	if err := c.api.updateConversation(ctx, topicID, values); err != nil {
		c.logger.Warn("server conversation update failed",
			zap.String("topic", topicID), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) loadCursor(key string) int64 {
	raw, err := c.db.GetValue(key)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Client) saveCursor(key string, v int64) {
	if err := c.db.SetValue(key, strconv.FormatInt(v, 10)); err != nil {
		c.logger.Warn("persist cursor", zap.String("key", key), zap.Error(err))
	}
}

// emitConversationsUpdated batches one notification for a changed set.
func (c *Client) emitConversationsUpdated(conversations []*models.Conversation) {
	c.bus.Publish(bus.Event{
		Kind:      bus.KindConversationsUpdated,
		Timestamp: time.Now(),
		Payload:   conversations,
	})
	if c.Handlers.OnConversationsUpdated != nil {
		c.Handlers.OnConversationsUpdated(conversations)
	}
}

func (c *Client) emitConversationsRemoved(topicIDs []string) {
	if len(topicIDs) == 0 {
		return
	}
	c.bus.Publish(bus.Event{
		Kind:      bus.KindConversationsRemoved,
		Timestamp: time.Now(),
		Payload:   topicIDs,
	})
	if c.Handlers.OnConversationsRemoved != nil {
		c.Handlers.OnConversationsRemoved(topicIDs)
	}
}

func (c *Client) publishMessage(kind string, log *models.ChatLog) {
	c.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   log,
	})
}
