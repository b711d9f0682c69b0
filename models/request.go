package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestType is the discriminant demultiplexing inbound frames.
type RequestType string

const (
	RequestTypeChat     RequestType = "chat"
	RequestTypeTyping   RequestType = "typing"
	RequestTypeRead     RequestType = "read"
	RequestTypeResponse RequestType = "resp"
	RequestTypeKickout  RequestType = "kickout"
	RequestTypeSystem   RequestType = "system"
	RequestTypeNop      RequestType = "nop"

	// RequestTypeConversationRemoved is the server push listing
	// conversations that must be deleted locally.
	RequestTypeConversationRemoved RequestType = "chat.removed"
)

// ChatRequest is the single frame format exchanged with the server in
// both directions. ID correlates a client request with its resp frame.
type ChatRequest struct {
	Type            RequestType `json:"type"`
	ID              string      `json:"id,omitempty"`
	Code            int         `json:"code,omitempty"`
	TopicID         string      `json:"topicId,omitempty"`
	Seq             int64       `json:"seq,omitempty"`
	Attendee        string      `json:"attendee,omitempty"`
	AttendeeProfile *User       `json:"attendeeProfile,omitempty"`
	ChatID          string      `json:"chatId,omitempty"`
	CreatedAt       int64       `json:"createdAt,omitempty"`
	Content         *Content    `json:"content,omitempty"`
	Message         string      `json:"message,omitempty"`
	Removed         []string    `json:"removed,omitempty"`
}

// NewChatID allocates a client-local message id: a unix-millisecond
// prefix keeps ids roughly time-ordered, the uuid suffix makes them
// unique across devices.
func NewChatID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%x%s", time.Now().UnixMilli(), suffix[:12])
}

// NewChatRequest builds an outbound chat frame for the given content.
func NewChatRequest(topicID string, content Content) *ChatRequest {
	return &ChatRequest{
		Type:    RequestTypeChat,
		ID:      NewChatID(),
		TopicID: topicID,
		ChatID:  NewChatID(),
		Content: &content,
	}
}

// NewRecallRequest builds the recall frame for a previously sent message.
func NewRecallRequest(topicID, messageID string) *ChatRequest {
	content := NewRecallContent(messageID)
	return NewChatRequest(topicID, content)
}

// NewTypingRequest builds a fire-and-forget typing indicator.
func NewTypingRequest(topicID string) *ChatRequest {
	return &ChatRequest{Type: RequestTypeTyping, TopicID: topicID}
}

// NewReadRequest marks a topic read on the server.
func NewReadRequest(topicID string) *ChatRequest {
	return &ChatRequest{Type: RequestTypeRead, ID: NewChatID(), TopicID: topicID}
}

// MakeResponse builds the resp frame answering an inbound request.
func (r *ChatRequest) MakeResponse(code int) *ChatRequest {
	return &ChatRequest{
		Type:    RequestTypeResponse,
		ID:      r.ID,
		Code:    code,
		TopicID: r.TopicID,
		Seq:     r.Seq,
		ChatID:  r.ChatID,
	}
}

// Encode serializes the frame for the wire.
func (r *ChatRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest parses a frame received from the wire.
func DecodeRequest(data []byte) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if req.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &req, nil
}
