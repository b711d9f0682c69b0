package chatkit

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatkit/bus"
	"github.com/matheus3301/chatkit/models"
	"github.com/matheus3301/chatkit/status"
	"github.com/matheus3301/chatkit/transport"
)

// run is the connection manager. It owns the dial/serve/reconnect
// cycle; all socket writes flow through sendFrame.
func (c *Client) run() {
	defer c.wg.Done()

	attempts := 0
	for {
		if c.isShutdown() {
			return
		}
		if err := c.state.Transition(status.Connecting); err != nil {
			c.logger.Warn("connecting transition", zap.Error(err))
			return
		}
		if c.Handlers.OnConnecting != nil {
			c.Handlers.OnConnecting()
		}

		dialCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Connection.Keepalive())
		conn, code, err := c.dial(dialCtx, transport.Options{
			Endpoint: c.info.Endpoint,
			Token:    c.info.Token,
			Device:   c.info.Device,
		}, c.logger)
		cancel()
		if err != nil {
			if c.isShutdown() {
				return
			}
			attempts++
			if code == http.StatusUnauthorized {
				// Auth failures fire OnTokenExpired instead of
				// OnNetBroken and never auto-reconnect; the host must
				// refresh the token and signal AppActive.
				if terr := c.state.Transition(status.Broken); terr != nil {
					return
				}
				if c.Handlers.OnTokenExpired != nil {
					c.Handlers.OnTokenExpired(err.Error())
				}
				if !c.waitAppActive() {
					return
				}
				attempts = 0
				continue
			}
			c.toBroken(err.Error())
			c.logger.Warn("connect failed",
				zap.Int("attempts", attempts),
				zap.Error(err))
			if attempts > c.cfg.Connection.MaxRetries {
				// Retries exhausted; hold in Broken until the host
				// signals activity.
				if !c.waitAppActive() {
					return
				}
				attempts = 0
				continue
			}
			if !c.waitBackoff(attempts) {
				return
			}
			continue
		}

		attempts = 0
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.touchAlive()
		if err := c.state.Transition(status.Connected); err != nil {
			c.logger.Warn("connected transition", zap.Error(err))
			conn.Close("bad state")
			return
		}
		if c.Handlers.OnConnected != nil {
			c.Handlers.OnConnected()
		}
		c.flushQueued()

		reason := c.serve(conn)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		if reason == "kickout" || c.isShutdown() {
			return
		}
		c.toBroken(reason)
	}
}

// toBroken records breakage and fires the callback. Transition errors
// only happen when shutdown won the race, which is fine to ignore.
func (c *Client) toBroken(reason string) {
	if err := c.state.Transition(status.Broken); err != nil {
		return
	}
	if c.Handlers.OnNetBroken != nil {
		c.Handlers.OnNetBroken(reason)
	}
}

// waitBackoff sleeps between connect attempts. The delay grows with the
// attempt count and is capped by the configured max interval.
func (c *Client) waitBackoff(attempts int) bool {
	delay := time.Duration(attempts) * time.Second
	if max := c.cfg.Connection.MaxConnectInterval(); delay > max {
		delay = max
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.appActiveCh:
		return true
	case <-c.shutdownCh:
		return false
	}
}

// waitAppActive blocks until the host signals activity or shutdown.
func (c *Client) waitAppActive() bool {
	select {
	case <-c.appActiveCh:
		return true
	case <-c.shutdownCh:
		return false
	}
}

// serve processes one live connection until it breaks. Returns the
// breakage reason.
func (c *Client) serve(conn wireConn) string {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	lastPing := time.Now()

	for {
		select {
		case <-c.shutdownCh:
			conn.Close("shutdown")
			return "shutdown"
		case <-c.appActiveCh:
			// Already connected; nothing to force.
		case <-ticker.C:
			idle := time.Since(c.LastAliveAt())
			if idle >= c.cfg.Connection.Keepalive() {
				if err := c.sendFrame(context.Background(), &models.ChatRequest{Type: models.RequestTypeNop}); err != nil {
					conn.Close("keepalive failed")
					return "keepalive: " + err.Error()
				}
			}
			if time.Since(lastPing) >= c.cfg.Connection.Keepalive() {
				lastPing = time.Now()
				go c.pingConn(conn)
			}
		case msg, ok := <-conn.Messages():
			if !ok {
				return "connection closed"
			}
			if msg.Err != nil {
				return msg.Err.Error()
			}
			c.touchAlive()
			req, err := models.DecodeRequest(msg.Data)
			if err != nil {
				c.logger.Warn("bad inbound frame", zap.Error(err))
				continue
			}
			if stop := c.handleRequest(req); stop {
				conn.Close("kickout")
				return "kickout"
			}
		}
	}
}

// pingConn runs one diagnostic websocket ping. A missed pong is logged
// but never breaks the connection; real breakage surfaces on the read
// or write path.
func (c *Client) pingConn(conn wireConn) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Connection.PingTimeout())
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		c.logger.Warn("ping missed pong", zap.Error(err))
	}
}

// handleRequest demultiplexes one inbound frame. Returns true when the
// connection must shut down (server kickoff).
func (c *Client) handleRequest(req *models.ChatRequest) bool {
	switch req.Type {
	case models.RequestTypeResponse:
		c.handleAck(req)
	case models.RequestTypeChat:
		c.respond(req, c.handleChat(req))
	case models.RequestTypeTyping:
		if c.Handlers.OnTopicTyping != nil {
			c.Handlers.OnTopicTyping(req.TopicID, req.Attendee)
		}
	case models.RequestTypeRead:
		c.handleRead(req)
		c.respond(req, 200)
	case models.RequestTypeKickout:
		c.logger.Info("kicked off by server", zap.String("reason", req.Message))
		if c.Handlers.OnKickoff != nil {
			c.Handlers.OnKickoff(req.Message)
		}
		go c.Shutdown()
		return true
	case models.RequestTypeSystem:
		code := 200
		if c.Handlers.OnSystemRequest != nil {
			if v := c.Handlers.OnSystemRequest(req); v != 0 {
				code = v
			}
		}
		c.respond(req, code)
	case models.RequestTypeNop:
		// Keepalive echo; alive timestamp already refreshed.
	case models.RequestTypeConversationRemoved:
		c.handleConversationsRemoved(req.Removed)
	default:
		code := 200
		if c.Handlers.OnUnknownRequest != nil {
			if v := c.Handlers.OnUnknownRequest(req); v != 0 {
				code = v
			}
		} else {
			c.logger.Debug("unknown frame type", zap.String("type", string(req.Type)))
		}
		c.respond(req, code)
	}
	return false
}

// handleChat ingests an inbound chat frame: store the log row, roll the
// conversation forward, and fan out to the host. Returns the resp code.
func (c *Client) handleChat(req *models.ChatRequest) int {
	if req.TopicID == "" || req.ChatID == "" {
		return 400
	}
	if req.Content != nil && req.Content.Type.IsTopicEvent() {
		c.handleTopicEvent(req)
		return 200
	}

	if req.Content != nil {
		switch req.Content.Type {
		case models.ContentTypeRecall:
			// Another device or attendee recalled a message we may
			// hold; converge the target row.
			if err := c.db.ApplyRecall(req.TopicID, req.Content.Text); err != nil {
				c.logger.Warn("apply recall", zap.Error(err))
			}
		case models.ContentTypeUpdateExtra:
			if err := c.db.MergeChatLogExtra(req.TopicID, req.Content.Text, req.Content.Extra); err != nil {
				c.logger.Warn("merge log extra", zap.Error(err))
			}
		}
	}

	log := models.ChatLogFromRequest(req)
	if err := c.db.SaveChatLog(log); err != nil {
		c.logger.Error("save chat log", zap.Error(err))
		return 500
	}
	c.publishMessage(bus.KindMessageUpserted, log)

	// Our own messages echoed from another device never count as
	// unread; the handler can opt any message out of counting.
	countUnread := req.Attendee != c.info.UserID
	if c.Handlers.OnTopicMessage != nil {
		countable := c.Handlers.OnTopicMessage(req)
		countUnread = countUnread && countable
	}

	conv, err := c.db.ApplyChatToConversation(req, countUnread)
	if err != nil {
		c.logger.Error("apply chat to conversation", zap.Error(err))
		return 500
	}
	c.emitConversationsUpdated([]*models.Conversation{conv})
	return 200
}

// handleTopicEvent surfaces membership/system notifications and keeps
// the topic cache warm.
func (c *Client) handleTopicEvent(req *models.ChatRequest) {
	if c.Handlers.OnTopicEvent != nil {
		c.Handlers.OnTopicEvent(req)
	}
	if req.Content.Type == models.ContentTypeTopicDismiss {
		if err := c.db.RemoveTopic(req.TopicID); err != nil {
			c.logger.Warn("remove topic", zap.Error(err))
		}
		return
	}
	// Drop the cached topic record so the next read refetches
	// membership that this event may have changed.
	if err := c.db.RemoveTopic(req.TopicID); err != nil {
		c.logger.Warn("invalidate topic", zap.Error(err))
	}
}

// handleRead processes a read receipt. One from our own user id means
// another device read the topic, so the local unread counter resets.
func (c *Client) handleRead(req *models.ChatRequest) {
	if req.Attendee == c.info.UserID {
		conv, err := c.db.SetConversationRead(req.TopicID)
		if err != nil {
			c.logger.Warn("set conversation read", zap.Error(err))
		} else {
			c.emitConversationsUpdated([]*models.Conversation{conv})
		}
	}
	if c.Handlers.OnTopicRead != nil {
		c.Handlers.OnTopicRead(req.TopicID, req.Attendee)
	}
}

func (c *Client) handleConversationsRemoved(topicIDs []string) {
	removed := make([]string, 0, len(topicIDs))
	for _, id := range topicIDs {
		if err := c.db.RemoveConversation(id); err != nil {
			c.logger.Warn("remove conversation", zap.String("topic", id), zap.Error(err))
			continue
		}
		removed = append(removed, id)
	}
	c.emitConversationsRemoved(removed)
}

// respond answers an inbound frame that carries a correlation id.
func (c *Client) respond(req *models.ChatRequest, code int) {
	if req.ID == "" {
		return
	}
	if err := c.sendFrame(context.Background(), req.MakeResponse(code)); err != nil {
		c.logger.Debug("send response", zap.Error(err))
	}
}

// sendFrame serializes and writes one frame. Only one writer touches
// the socket at a time.
func (c *Client) sendFrame(ctx context.Context, req *models.ChatRequest) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := req.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	err = conn.Send(ctx, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	c.touchAlive()
	return nil
}
