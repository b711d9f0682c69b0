package chatkit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatkit/models"
	"github.com/matheus3301/chatkit/store"
)

// GetUser returns the cached profile when fresh. Blocking refetches an
// expired or partial record before returning; non-blocking returns the
// cached record (a partial stub if nothing is cached) and refreshes in
// the background.
func (c *Client) GetUser(ctx context.Context, userID string, blocking bool) (*models.User, error) {
	cached, err := c.db.GetUser(userID)
	if err == nil && !cached.IsPartial &&
		!store.IsCacheExpired(cached.CachedAt, c.cfg.Cache.UserTTL()) {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if blocking {
		fetched, ferr := c.fetchUser(ctx, userID)
		if ferr != nil {
			if cached != nil {
				return cached, nil
			}
			return nil, ferr
		}
		return fetched, nil
	}

	if cached == nil {
		cached = &models.User{UserID: userID, IsPartial: true}
		if serr := c.db.SaveUserStub(cached); serr != nil {
			return nil, serr
		}
	}
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, ferr := c.fetchUser(refreshCtx, userID); ferr != nil {
			c.logger.Debug("background user refresh failed",
				zap.String("user", userID), zap.Error(ferr))
		}
	}()
	return cached, nil
}

// GetUsers resolves a batch of profiles from cache, synthesizing
// partial stubs for unknown ids and refreshing stale entries in the
// background. It never blocks on the network.
func (c *Client) GetUsers(ctx context.Context, userIDs []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(userIDs))
	for _, id := range userIDs {
		if err := ctx.Err(); err != nil {
			return users, err
		}
		u, err := c.GetUser(ctx, id, false)
		if err != nil {
			return users, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (c *Client) fetchUser(ctx context.Context, userID string) (*models.User, error) {
	fetched, err := c.api.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if fetched.UserID == "" {
		fetched.UserID = userID
	}
	if err := c.db.SaveUser(fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

// SetUserRemark sets the caller's private display name for a user.
func (c *Client) SetUserRemark(ctx context.Context, userID, remark string) error {
	if _, err := c.db.UpdateUser(userID, func(u *models.User) { u.Remark = remark }); err != nil {
		return err
	}
	if err := c.api.setRelation(ctx, userID, map[string]any{"remark": remark}); err != nil {
		c.logger.Warn("server remark update failed",
			zap.String("user", userID), zap.Error(err))
		return err
	}
	return nil
}

// SetUserStar marks or unmarks a user as a favorite contact.
func (c *Client) SetUserStar(ctx context.Context, userID string, star bool) error {
	if _, err := c.db.UpdateUser(userID, func(u *models.User) { u.Star = star }); err != nil {
		return err
	}
	if err := c.api.setRelation(ctx, userID, map[string]any{"favorite": star}); err != nil {
		c.logger.Warn("server star update failed",
			zap.String("user", userID), zap.Error(err))
		return err
	}
	return nil
}

// SetUserBlocked blocks or unblocks a user.
func (c *Client) SetUserBlocked(ctx context.Context, userID string, blocked bool) error {
	if _, err := c.db.UpdateUser(userID, func(u *models.User) { u.Blocked = blocked }); err != nil {
		return err
	}
	if err := c.api.setUserBlocked(ctx, userID, blocked); err != nil {
		c.logger.Warn("server block update failed",
			zap.String("user", userID), zap.Error(err))
		return err
	}
	return nil
}
