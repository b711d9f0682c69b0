package models

// ChatLogStatus tracks the local two-phase lifecycle of a message row.
type ChatLogStatus int

const (
	ChatLogStatusSending ChatLogStatus = iota
	ChatLogStatusSent
	ChatLogStatusReceived
	ChatLogStatusRead
	ChatLogStatusFailed
)

// ChatLog is one entry in a topic's message log. Seq is server-assigned
// and strictly increasing per topic; rows written before the ack carry
// Seq 0 and status Sending.
type ChatLog struct {
	TopicID   string         `json:"topicId"`
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	SenderID  string         `json:"senderId"`
	Content   Content        `json:"content"`
	CreatedAt int64          `json:"createdAt"`
	Read      bool           `json:"read,omitempty"`
	Recall    bool           `json:"recall,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	Status    ChatLogStatus  `json:"status,omitempty"`
	CachedAt  int64          `json:"cachedAt,omitempty"`
}

// SortKey orders a topic's log by server sequence.
func (l *ChatLog) SortKey() int64 { return l.Seq }

// ChatLogFromRequest converts an inbound chat frame into a log row.
func ChatLogFromRequest(req *ChatRequest) *ChatLog {
	var content Content
	if req.Content != nil {
		content = *req.Content
	}
	return &ChatLog{
		TopicID:   req.TopicID,
		ID:        req.ChatID,
		Seq:       req.Seq,
		SenderID:  req.Attendee,
		Content:   content,
		CreatedAt: req.CreatedAt,
		Recall:    content.Type == ContentTypeRecall,
		Status:    ChatLogStatusReceived,
	}
}
