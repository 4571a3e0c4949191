package convo

import "time"

// Status tracks delivery of a locally-created message.
type Status int

const (
	// StatusSent means the message carries a server-assigned id.
	StatusSent Status = iota
	// StatusPending means the message has a provisional id and awaits
	// acknowledgment.
	StatusPending
	// StatusFailed means acknowledgment never arrived within the timeout.
	// Retry is an explicit user action, never automatic.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is a chat message held by the store. ID is provisional until the
// server acknowledgment swaps in the real identity.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	CreatedAt      time.Time
	ReadAt         *time.Time
	Status         Status
}

// Conversation is a read-only snapshot of one thread.
type Conversation struct {
	ID          string
	OtherUserID string
	LastMessage *Message
	Unread      int
	Joined      bool
	Active      bool
}

// DirectID returns the stable conversation id for a two-party thread: the
// unordered pair of participant ids.
func DirectID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
