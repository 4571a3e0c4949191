package router

import "time"

// Kind is a domain event variant produced by the router. The set is closed:
// every inbound frame either maps to one of these or is dropped at decode.
type Kind int

const (
	// KindNewMessage carries a chat message relayed or echoed by the server.
	KindNewMessage Kind = iota
	// KindNotification carries a generic non-chat notice.
	KindNotification
	// KindMessageRead is a read receipt for a single message.
	KindMessageRead
	// KindTypingStarted marks a counterpart as typing in a conversation.
	KindTypingStarted
	// KindTypingStopped clears a counterpart's typing state.
	KindTypingStopped
	// KindPresenceChanged reports a presence label change for a user.
	KindPresenceChanged
)

func (k Kind) String() string {
	switch k {
	case KindNewMessage:
		return "new_message"
	case KindNotification:
		return "notification"
	case KindMessageRead:
		return "message_read"
	case KindTypingStarted:
		return "typing_started"
	case KindTypingStopped:
		return "typing_stopped"
	case KindPresenceChanged:
		return "presence_changed"
	default:
		return "unknown"
	}
}

// Event describes one decoded inbound occurrence. Fields beyond Kind are
// variant-specific; unrelated fields are zero.
type Event struct {
	Kind Kind

	// Message is set for KindNewMessage and KindNotification.
	Message Message

	// MessageID and ReadAt are set for KindMessageRead.
	MessageID string
	ReadAt    time.Time

	// ConversationID and UserID are set for typing events.
	ConversationID string
	UserID         string

	// Status is set for KindPresenceChanged, together with UserID.
	Status string
}

// Message is the router's view of a chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	CreatedAt      time.Time
	ReadAt         *time.Time
}
