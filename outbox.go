package chatkit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatkit/bus"
	"github.com/matheus3301/chatkit/models"
)

// pendingRequest tracks one in-flight send until its ack, failure, or
// idle timeout. resolved guards at-most-once callback delivery.
type pendingRequest struct {
	req       *models.ChatRequest
	opts      *SendOptions
	createdAt time.Time
	attempts  int
	resolved  bool
	hasRow    bool
	sentOnce  sync.Once
	// onAckApply reconciles the store with the server ack before the
	// host's OnAck fires.
	onAckApply func(ack *models.ChatRequest) error
}

// outbox owns every unresolved send. Entries are keyed by the frame's
// correlation id.
type outbox struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	// queued holds ids of sends parked while the connection is down,
	// flushed FIFO on the next Connected transition.
	queued []string
	logger *zap.Logger
}

func newOutbox(logger *zap.Logger) *outbox {
	return &outbox{
		pending: make(map[string]*pendingRequest),
		logger:  logger,
	}
}

func (o *outbox) add(p *pendingRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[p.req.ID] = p
}

// take removes and returns the entry if it is still unresolved. A nil
// return means the send already resolved on another path.
func (o *outbox) take(id string) *pendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if !ok || p.resolved {
		return nil
	}
	p.resolved = true
	delete(o.pending, id)
	return p
}

// park defers a send until the connection comes back.
func (o *outbox) park(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pending[id]; ok && !p.resolved {
		o.queued = append(o.queued, id)
	}
}

// drainQueued returns the parked sends in FIFO order, skipping any that
// resolved (timed out) while parked.
func (o *outbox) drainQueued() []*pendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*pendingRequest, 0, len(o.queued))
	for _, id := range o.queued {
		if p, ok := o.pending[id]; ok && !p.resolved {
			out = append(out, p)
		}
	}
	o.queued = nil
	return out
}

// takeExpired resolves and returns every entry idle longer than maxIdle.
func (o *outbox) takeExpired(maxIdle time.Duration) []*pendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	var expired []*pendingRequest
	for id, p := range o.pending {
		if p.resolved || time.Since(p.createdAt) < maxIdle {
			continue
		}
		p.resolved = true
		delete(o.pending, id)
		expired = append(expired, p)
	}
	return expired
}

// takeAll resolves and returns everything still pending.
func (o *outbox) takeAll() []*pendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	all := make([]*pendingRequest, 0, len(o.pending))
	for id, p := range o.pending {
		if p.resolved {
			continue
		}
		p.resolved = true
		delete(o.pending, id)
		all = append(all, p)
	}
	o.queued = nil
	return all
}

// sweepLoop fails sends that never saw an ack within the idle window.
func (c *Client) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.shutdownCh:
			return
		case <-ticker.C:
			for _, p := range c.outbox.takeExpired(c.cfg.Outbox.SendIdleTimeout()) {
				c.logger.Info("send timed out",
					zap.String("topic", p.req.TopicID),
					zap.String("chatId", p.req.ChatID))
				c.failPending(p, "timeout")
			}
		}
	}
}

// handleAck correlates an inbound resp frame with its pending send.
func (c *Client) handleAck(ack *models.ChatRequest) {
	p := c.outbox.take(ack.ID)
	if p == nil {
		c.logger.Debug("ack without pending send", zap.String("id", ack.ID))
		return
	}
	if ack.Code != 0 && ack.Code != 200 {
		reason := ack.Message
		if reason == "" {
			reason = "code " + strconv.Itoa(ack.Code)
		}
		c.failPending(p, reason)
		return
	}
	if p.onAckApply != nil {
		if err := p.onAckApply(ack); err != nil {
			c.logger.Error("apply ack", zap.Error(err))
		}
	}
	c.publishMessage(bus.KindMessageAcked, &models.ChatLog{
		TopicID: p.req.TopicID, ID: p.req.ChatID, Seq: ack.Seq,
	})
	if p.opts.OnAck != nil {
		p.opts.OnAck(ack)
	}
}

// failPending marks the optimistic row failed and fires OnFail. The
// caller must hold the resolved entry (via take/takeExpired/takeAll).
func (c *Client) failPending(p *pendingRequest, reason string) {
	if p.hasRow {
		if err := c.db.UpdateChatLogFailed(p.req.TopicID, p.req.ChatID); err != nil {
			c.logger.Warn("mark chat log failed", zap.Error(err))
		}
		c.publishMessage(bus.KindMessageFailed, &models.ChatLog{
			TopicID: p.req.TopicID, ID: p.req.ChatID,
		})
	}
	if p.opts.OnFail != nil {
		p.opts.OnFail(reason)
	}
}

func (c *Client) failAllPending(reason string) {
	for _, p := range c.outbox.takeAll() {
		c.failPending(p, reason)
	}
}

// flushQueued retransmits sends parked while the connection was down.
func (c *Client) flushQueued() {
	for _, p := range c.outbox.drainQueued() {
		p.attempts++
		if p.attempts > c.cfg.Connection.MaxRetries {
			if resolved := c.outbox.take(p.req.ID); resolved != nil {
				c.failPending(resolved, "too many retries")
			}
			continue
		}
		c.transmit(p)
	}
}

// transmit writes a pending frame, parking it when the connection is
// down so the next Connected transition retries it.
func (c *Client) transmit(p *pendingRequest) {
	if err := c.sendFrame(context.Background(), p.req); err != nil {
		c.logger.Debug("park send",
			zap.String("chatId", p.req.ChatID),
			zap.Error(err))
		c.outbox.park(p.req.ID)
		return
	}
	p.sentOnce.Do(func() {
		if p.hasRow {
			c.publishMessage(bus.KindMessageSent, &models.ChatLog{
				TopicID: p.req.TopicID, ID: p.req.ChatID,
			})
		}
		if p.opts.OnSent != nil {
			p.opts.OnSent()
		}
	})
}
