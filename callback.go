package chatkit

import "github.com/matheus3301/chatkit/models"

// Handlers holds the host application's event callbacks. One slot per
// event; assigning a slot replaces the previous handler. All handlers
// are optional and are invoked from the client's internal goroutines,
// so they must not block.
type Handlers struct {
	// Connection lifecycle.
	OnConnected    func()
	OnConnecting   func()
	OnNetBroken    func(reason string)
	OnKickoff      func(reason string)
	OnTokenExpired func(reason string)

	// OnTopicMessage delivers an inbound chat message. The returned
	// flag controls unread accounting: return false to keep the
	// message from incrementing the conversation's unread count.
	OnTopicMessage func(req *models.ChatRequest) bool
	// OnTopicEvent delivers topic membership/system notifications
	// (join, quit, notice changes and the like).
	OnTopicEvent  func(req *models.ChatRequest)
	OnTopicTyping func(topicID, senderID string)
	OnTopicRead   func(topicID, senderID string)

	// Cache change propagation. Updated batches per sync page or
	// local mutation; Removed lists topic ids deleted locally.
	OnConversationsUpdated func(conversations []*models.Conversation)
	OnConversationsRemoved func(topicIDs []string)

	// OnSystemRequest and OnUnknownRequest answer inbound frames the
	// engine does not interpret. The returned code is sent back in the
	// resp frame; return 0 for the default 200.
	OnSystemRequest  func(req *models.ChatRequest) int
	OnUnknownRequest func(req *models.ChatRequest) int
}

// SendOptions carries per-send metadata and completion callbacks. For
// any one send exactly one of OnAck/OnFail fires, at most once.
type SendOptions struct {
	Mentions   []string
	MentionAll bool
	Reply      string

	// OnProgress reports attachment upload progress.
	OnProgress func(loaded, total int64)
	// OnSent fires once the frame has been written to the wire.
	OnSent func()
	// OnAck delivers the server acknowledgement carrying the assigned seq.
	OnAck func(req *models.ChatRequest)
	// OnFail delivers the failure reason (server rejection, upload
	// error, or "timeout" when no ack arrives in time).
	OnFail func(reason string)
}
