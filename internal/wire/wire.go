// Package wire defines the JSON frames exchanged with the messaging server.
// Frames are decoded exactly once, at the transport boundary.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is the envelope for every transport event, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client -> server events.
const (
	EventHello             = "hello"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkMessagesRead  = "mark_messages_read"
	EventUpdateStatus      = "update_status"
)

// Server -> client events.
const (
	EventNewMessage      = "new_message"
	EventNewNotification = "new_notification"
	EventMessageRead     = "messageRead"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventError           = "error"
)

// Server error codes carried on error frames.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotInRoom    = "not_in_room"
)

// ServerError is a command rejection sent by the server on an error frame.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Message is a chat message as it travels on the wire.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	ReceiverID     string     `json:"receiverId,omitempty"`
	Body           string     `json:"message"`
	Type           string     `json:"type,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// HelloData introduces the client on a fresh connection. It is the first
// frame on every link, before any command is accepted.
type HelloData struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// JoinConversationData subscribes to or unsubscribes from a conversation room.
type JoinConversationData struct {
	OtherUserID string `json:"otherUserId"`
}

// SendMessageData carries an outgoing chat message.
type SendMessageData struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Type       string `json:"type"`
}

// TypingData signals typing start/stop toward a counterpart.
type TypingData struct {
	ToUserID string `json:"toUserId"`
}

// MarkMessagesReadData requests a bulk read receipt for a counterpart's messages.
type MarkMessagesReadData struct {
	FromUserID string `json:"fromUserId"`
}

// UpdateStatusData overrides the local presence label.
type UpdateStatusData struct {
	Status string `json:"status"`
}

// NewMessageData wraps an inbound chat message or notification.
type NewMessageData struct {
	Message Message `json:"message"`
}

// MessageReadData is an inbound read receipt for a single message.
type MessageReadData struct {
	MessageID string    `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

// TypingEventData is an inbound typing signal.
type TypingEventData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// NewFrame marshals payload into a frame for the given event.
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}
