package models

// TopicNotice is a pinned announcement on a group topic.
type TopicNotice struct {
	Text      string `json:"text"`
	Publisher string `json:"publisher,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// Topic is the full group record behind a conversation: membership,
// administration and notices on top of the denormalized list entry.
type Topic struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	Remark     string         `json:"remark,omitempty"`
	OwnerID    string         `json:"ownerId,omitempty"`
	AttendeeID string         `json:"attendeeId,omitempty"`
	AdminIDs   []string       `json:"admins,omitempty"`
	Members    int64          `json:"members,omitempty"`
	Multiple   bool           `json:"multiple,omitempty"`
	Source     string         `json:"source,omitempty"`
	LastSeq    int64          `json:"lastSeq,omitempty"`
	Silent     bool           `json:"silent,omitempty"`
	Private    bool           `json:"private,omitempty"`
	Notice     *TopicNotice   `json:"notice,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	CreatedAt  int64          `json:"createdAt,omitempty"`
	UpdatedAt  int64          `json:"updatedAt,omitempty"`
	CachedAt   int64          `json:"cachedAt,omitempty"`
}

// SortKey orders topics by last activity.
func (t *Topic) SortKey() int64 { return t.UpdatedAt }

// TopicKnock is a pending join request on a private topic.
type TopicKnock struct {
	TopicID   string `json:"topicId"`
	UserID    string `json:"userId"`
	Message   string `json:"message,omitempty"`
	Source    string `json:"source,omitempty"`
	Status    string `json:"status,omitempty"`
	AdminID   string `json:"adminId,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// Conversation derives the list entry for a fully known topic.
func (t *Topic) Conversation() *Conversation {
	return &Conversation{
		TopicID:   t.ID,
		OwnerID:   t.OwnerID,
		Multiple:  t.Multiple,
		Attendee:  t.AttendeeID,
		Name:      t.Name,
		Icon:      t.Icon,
		LastSeq:   t.LastSeq,
		UpdatedAt: t.UpdatedAt,
	}
}
