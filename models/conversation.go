package models

// Tag is one ordered label attached to a conversation.
type Tag struct {
	ID    string `json:"id"`
	Type  string `json:"type,omitempty"`
	Label string `json:"label,omitempty"`
}

// Conversation is the denormalized list entry for a topic. UpdatedAt is
// a unix-millisecond timestamp used as the sync cursor; it never
// decreases across server-confirmed updates to the same topic.
type Conversation struct {
	TopicID       string         `json:"topicId"`
	OwnerID       string         `json:"ownerId,omitempty"`
	Multiple      bool           `json:"multiple,omitempty"`
	Attendee      string         `json:"attendee,omitempty"`
	Name          string         `json:"name,omitempty"`
	Icon          string         `json:"icon,omitempty"`
	Remark        string         `json:"remark,omitempty"`
	Sticky        bool           `json:"sticky,omitempty"`
	Mute          bool           `json:"mute,omitempty"`
	Tags          []Tag          `json:"tags,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
	LastSeq       int64          `json:"lastSeq,omitempty"`
	LastReadSeq   int64          `json:"lastReadSeq,omitempty"`
	LastSenderID  string         `json:"lastSenderId,omitempty"`
	LastMessage   *Content       `json:"lastMessage,omitempty"`
	LastMessageAt int64          `json:"lastMessageAt,omitempty"`
	Unread        int64          `json:"unread,omitempty"`
	UpdatedAt     int64          `json:"updatedAt,omitempty"`
	Category      string         `json:"category,omitempty"`
	CachedAt      int64          `json:"cachedAt,omitempty"`
	IsPartial     bool           `json:"isPartial,omitempty"`
}

// SortKey orders the conversation list by recency.
func (c *Conversation) SortKey() int64 { return c.UpdatedAt }

// ConversationFromRequest builds a partial stub for a topic first seen
// through an inbound frame before any sync has run.
func ConversationFromRequest(req *ChatRequest) *Conversation {
	return &Conversation{
		TopicID:   req.TopicID,
		Attendee:  req.Attendee,
		LastSeq:   req.Seq,
		UpdatedAt: req.CreatedAt,
		IsPartial: true,
	}
}
