package models

// ContentType identifies the payload kind carried by a chat message.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeVoice    ContentType = "voice"
	ContentTypeVideo    ContentType = "video"
	ContentTypeFile     ContentType = "file"
	ContentTypeLocation ContentType = "location"
	ContentTypeLink     ContentType = "link"
	ContentTypeLogs     ContentType = "logs"
	ContentTypeRecall   ContentType = "recall"
	ContentTypeCustom   ContentType = "custom"

	// ContentTypeUpdateExtra is an envelope whose ack merges into the
	// target message's extra without altering its content.
	ContentTypeUpdateExtra ContentType = "update.extra"

	ContentTypeTopicJoin         ContentType = "topic.join"
	ContentTypeTopicQuit         ContentType = "topic.quit"
	ContentTypeTopicKickout      ContentType = "topic.kickout"
	ContentTypeTopicDismiss      ContentType = "topic.dismiss"
	ContentTypeTopicNotice       ContentType = "topic.notice"
	ContentTypeTopicKnock        ContentType = "topic.knock"
	ContentTypeTopicKnockAccept  ContentType = "topic.knock.accept"
	ContentTypeTopicKnockReject  ContentType = "topic.knock.reject"
	ContentTypeTopicSilent       ContentType = "topic.silent"
	ContentTypeTopicSilentMember ContentType = "topic.silent.member"
	ContentTypeTopicChangeOwner  ContentType = "topic.changeowner"
)

// IsTopicEvent reports whether the content type is a topic system
// notification rather than a user-visible message.
func (t ContentType) IsTopicEvent() bool {
	switch t {
	case ContentTypeTopicJoin, ContentTypeTopicQuit, ContentTypeTopicKickout,
		ContentTypeTopicDismiss, ContentTypeTopicNotice, ContentTypeTopicKnock,
		ContentTypeTopicKnockAccept, ContentTypeTopicKnockReject,
		ContentTypeTopicSilent, ContentTypeTopicSilentMember,
		ContentTypeTopicChangeOwner:
		return true
	}
	return false
}

// Content is the message payload. One struct covers every content kind;
// only the fields relevant to Type are populated, and Custom carries an
// opaque payload for application-defined kinds.
type Content struct {
	Type        ContentType    `json:"type"`
	Text        string         `json:"text,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
	Duration    string         `json:"duration,omitempty"`
	Size        int64          `json:"size,omitempty"`
	Width       float64        `json:"width,omitempty"`
	Height      float64        `json:"height,omitempty"`
	Mentions    []string       `json:"mentions,omitempty"`
	MentionAll  bool           `json:"mentionAll,omitempty"`
	Reply       string         `json:"reply,omitempty"`
	Attachment  *Attachment    `json:"-"`
	Extra       map[string]any `json:"extra,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Attachment is a local binary pending upload. It never crosses the
// wire; a successful upload substitutes the returned URL into Text.
type Attachment struct {
	FileName string
	FilePath string
	Data     []byte
	Private  bool
}

// HasAttachment reports whether the content still carries an unuploaded
// binary.
func (c *Content) HasAttachment() bool {
	return c.Attachment != nil
}

// NewTextContent builds a plain text payload.
func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// NewRecallContent builds the marker content that replaces a recalled
// message. Text holds the recalled message's original id.
func NewRecallContent(targetID string) Content {
	return Content{Type: ContentTypeRecall, Text: targetID}
}
