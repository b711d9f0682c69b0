package chatkit

import (
	"context"
	"errors"

	"github.com/matheus3301/chatkit/models"
	"github.com/matheus3301/chatkit/store"
)

// GetTopic returns the cached group record, refetching when the cache
// entry expired or was invalidated by a membership event.
func (c *Client) GetTopic(ctx context.Context, topicID string) (*models.Topic, error) {
	cached, err := c.db.GetTopic(topicID)
	if err == nil && !store.IsCacheExpired(cached.CachedAt, c.cfg.Cache.UserTTL()) {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	fetched, ferr := c.api.getTopicInfo(ctx, topicID)
	if ferr != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, ferr
	}
	if err := c.db.SaveTopic(fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

// ListTopicKnocks fetches the pending join requests for a topic the
// caller administers. Not cached; knock state changes through frames
// faster than any sensible TTL.
func (c *Client) ListTopicKnocks(ctx context.Context, topicID string) ([]*models.TopicKnock, error) {
	return c.api.listTopicKnocks(ctx, topicID)
}
