package chatkit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatkit/bus"
	"github.com/matheus3301/chatkit/models"
	"github.com/matheus3301/chatkit/status"
)

// DoSend sends content to a topic. The returned id identifies the
// message immediately; completion arrives through the options'
// callbacks, exactly one of OnAck/OnFail per send. Sends issued while
// the connection is down are queued and flushed on reconnect.
func (c *Client) DoSend(topicID string, content models.Content, opts *SendOptions) (string, error) {
	if c.state.Current() == status.Shutdown {
		return "", ErrShutdown
	}
	if opts == nil {
		opts = &SendOptions{}
	}
	content.Mentions = opts.Mentions
	content.MentionAll = opts.MentionAll
	content.Reply = opts.Reply

	req := models.NewChatRequest(topicID, content)
	req.Attendee = c.info.UserID
	req.CreatedAt = time.Now().UnixMilli()

	// Optimistic pending row so the host sees the message before the
	// server confirms it.
	log := &models.ChatLog{
		TopicID:   topicID,
		ID:        req.ChatID,
		SenderID:  c.info.UserID,
		Content:   content,
		CreatedAt: req.CreatedAt,
		Status:    models.ChatLogStatusSending,
	}
	if err := c.db.SaveChatLog(log); err != nil {
		return "", err
	}
	c.publishMessage(bus.KindMessageUpserted, log)

	p := &pendingRequest{
		req:        req,
		opts:       opts,
		createdAt:  time.Now(),
		hasRow:     true,
		onAckApply: c.applySendAck(req),
	}
	c.outbox.add(p)
	go c.prepareAndTransmit(p)
	return req.ChatID, nil
}

// prepareAndTransmit uploads any attachment, then puts the frame on the
// wire. Upload failures resolve the send immediately.
func (c *Client) prepareAndTransmit(p *pendingRequest) {
	if p.req.Content != nil && p.req.Content.HasAttachment() {
		result, err := c.api.uploadAttachment(context.Background(), p.req.Content.Attachment, p.opts.OnProgress)
		if err != nil {
			c.logger.Warn("attachment upload failed",
				zap.String("chatId", p.req.ChatID),
				zap.Error(err))
			if resolved := c.outbox.take(p.req.ID); resolved != nil {
				c.failPending(resolved, err.Error())
			}
			return
		}
		p.req.Content.Attachment = nil
		p.req.Content.Text = result.Path
		if result.Thumbnail != "" {
			p.req.Content.Thumbnail = result.Thumbnail
		}
		if result.Size > 0 {
			p.req.Content.Size = result.Size
		}
		if p.req.Content.Placeholder == "" {
			p.req.Content.Placeholder = result.FileName
		}
	}
	c.transmit(p)
}

// applySendAck reconciles the optimistic row and its conversation with
// the server-assigned seq inside the store before OnAck fires.
func (c *Client) applySendAck(req *models.ChatRequest) func(ack *models.ChatRequest) error {
	return func(ack *models.ChatRequest) error {
		if err := c.db.UpdateChatLogSent(req.TopicID, req.ChatID, ack.Seq); err != nil {
			return err
		}
		confirmed := *req
		confirmed.Seq = ack.Seq
		if ack.CreatedAt != 0 {
			confirmed.CreatedAt = ack.CreatedAt
		}
		conv, err := c.db.ApplyChatToConversation(&confirmed, false)
		if err != nil {
			return err
		}
		c.emitConversationsUpdated([]*models.Conversation{conv})
		return nil
	}
}

// DoSendText sends a plain text message.
func (c *Client) DoSendText(topicID, text string, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.NewTextContent(text), opts)
}

// DoSendImage sends an image attachment (or an already-hosted URL in
// place of the attachment).
func (c *Client) DoSendImage(topicID string, attachment *models.Attachment, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type:       models.ContentTypeImage,
		Attachment: attachment,
	}, opts)
}

// DoSendVoice sends a voice clip; duration is the clip length the
// receiver displays, e.g. "0:07".
func (c *Client) DoSendVoice(topicID string, attachment *models.Attachment, duration string, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type:       models.ContentTypeVoice,
		Duration:   duration,
		Attachment: attachment,
	}, opts)
}

// DoSendVideo sends a video with an optional poster thumbnail.
func (c *Client) DoSendVideo(topicID string, attachment *models.Attachment, thumbnail, duration string, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type:       models.ContentTypeVideo,
		Thumbnail:  thumbnail,
		Duration:   duration,
		Attachment: attachment,
	}, opts)
}

// DoSendFile sends an arbitrary file; filename is the display name.
func (c *Client) DoSendFile(topicID string, attachment *models.Attachment, filename string, size int64, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type:        models.ContentTypeFile,
		Placeholder: filename,
		Size:        size,
		Attachment:  attachment,
	}, opts)
}

// DoSendLocation sends a coordinate pair with a display address.
func (c *Client) DoSendLocation(topicID, latitude, longitude, address string, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type:        models.ContentTypeLocation,
		Text:        latitude + "," + longitude,
		Placeholder: address,
	}, opts)
}

// DoSendLink sends a URL preview message.
func (c *Client) DoSendLink(topicID, url string, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type: models.ContentTypeLink,
		Text: url,
	}, opts)
}

// DoSendLogs forwards a batch of messages from another topic. logIDs
// are the forwarded message ids.
func (c *Client) DoSendLogs(topicID, sourceTopicID string, logIDs []string, opts *SendOptions) (string, error) {
	return c.DoSend(topicID, models.Content{
		Type:     models.ContentTypeLogs,
		Text:     sourceTopicID,
		Mentions: logIDs,
	}, opts)
}

// DoRecall withdraws a previously sent message. On ack the target row
// keeps its id and seq but its content becomes a recall marker. The
// server enforces the recall window; a rejection surfaces as OnFail.
func (c *Client) DoRecall(topicID, messageID string, opts *SendOptions) (string, error) {
	if c.state.Current() == status.Shutdown {
		return "", ErrShutdown
	}
	if opts == nil {
		opts = &SendOptions{}
	}
	// Reject locally when the cached row is already past the recall
	// window; the server enforces the window regardless.
	if log, err := c.db.GetChatLog(topicID, messageID); err == nil && log.CreatedAt > 0 {
		if time.Since(time.UnixMilli(log.CreatedAt)) > c.cfg.Outbox.RecallWindow() {
			return "", ErrRecallExpired
		}
	}
	req := models.NewRecallRequest(topicID, messageID)
	req.Attendee = c.info.UserID
	req.CreatedAt = time.Now().UnixMilli()

	p := &pendingRequest{
		req:       req,
		opts:      opts,
		createdAt: time.Now(),
		onAckApply: func(ack *models.ChatRequest) error {
			if err := c.db.ApplyRecall(topicID, messageID); err != nil {
				return err
			}
			c.publishMessage(bus.KindMessageUpserted, &models.ChatLog{
				TopicID: topicID, ID: messageID, Recall: true,
			})
			return nil
		},
	}
	c.outbox.add(p)
	go c.transmit(p)
	return req.ChatID, nil
}

// DoUpdateExtra merges key-value pairs into a sent message's extra
// without altering its content.
func (c *Client) DoUpdateExtra(topicID, messageID string, extra map[string]any, opts *SendOptions) (string, error) {
	if c.state.Current() == status.Shutdown {
		return "", ErrShutdown
	}
	if opts == nil {
		opts = &SendOptions{}
	}
	req := models.NewChatRequest(topicID, models.Content{
		Type:  models.ContentTypeUpdateExtra,
		Text:  messageID,
		Extra: extra,
	})
	req.Attendee = c.info.UserID
	req.CreatedAt = time.Now().UnixMilli()

	p := &pendingRequest{
		req:       req,
		opts:      opts,
		createdAt: time.Now(),
		onAckApply: func(ack *models.ChatRequest) error {
			return c.db.MergeChatLogExtra(topicID, messageID, extra)
		},
	}
	c.outbox.add(p)
	go c.transmit(p)
	return req.ChatID, nil
}

// DoTyping sends a fire-and-forget typing indicator: no tracking, no
// retry, dropped silently when the connection is down.
func (c *Client) DoTyping(topicID string) {
	if err := c.sendFrame(context.Background(), models.NewTypingRequest(topicID)); err != nil {
		c.logger.Debug("typing dropped", zap.Error(err))
	}
}
