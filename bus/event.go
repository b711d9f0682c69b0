package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix:
// "conn." for connection lifecycle, "conversation." for cache updates,
// "message." for the outbound pipeline.
const (
	KindConnStatusChanged = "conn.status_changed"

	KindConversationsUpdated = "conversation.updated"
	KindConversationsRemoved = "conversation.removed"

	KindMessageUpserted = "message.upserted"
	KindMessageSent     = "message.sent"
	KindMessageAcked    = "message.acked"
	KindMessageFailed   = "message.failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
