// Package router demultiplexes inbound transport frames into typed domain
// events and fans them out to subscribers.
package router

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/wire"
)

// Handler consumes one domain event. Handlers run synchronously on the
// delivery goroutine and must return before the next event is dispatched,
// which preserves FIFO order across events.
type Handler func(*Event)

// Router decodes frames once and delivers each resulting event to every
// subscriber of that variant. Frames that fail schema validation are logged
// and dropped; they never tear down the connection.
type Router struct {
	mu   sync.RWMutex
	subs map[Kind][]Handler
	log  *zerolog.Logger
}

// New builds an empty router.
func New(logger *zerolog.Logger) *Router {
	return &Router{
		subs: make(map[Kind][]Handler),
		log:  logger,
	}
}

// Subscribe registers a handler for one event variant. Multiple subscribers
// per variant are allowed; delivery order across subscribers is unspecified.
func (r *Router) Subscribe(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[kind] = append(r.subs[kind], h)
}

// HandleFrame decodes one inbound frame and dispatches the resulting event.
// Unknown event names and malformed payloads are dropped with a log entry.
func (r *Router) HandleFrame(frame wire.Frame) {
	switch frame.Event {
	case wire.EventNewMessage, wire.EventNewNotification:
		var data wire.NewMessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			r.dropFrame(frame.Event, err)
			return
		}
		kind := KindNewMessage
		if frame.Event == wire.EventNewNotification {
			kind = KindNotification
		}
		r.dispatch(&Event{
			Kind: kind,
			Message: Message{
				ID:             data.Message.ID,
				ConversationID: data.Message.ConversationID,
				SenderID:       data.Message.SenderID,
				ReceiverID:     data.Message.ReceiverID,
				Body:           data.Message.Body,
				CreatedAt:      data.Message.CreatedAt,
				ReadAt:         data.Message.ReadAt,
			},
		})
	case wire.EventMessageRead:
		var data wire.MessageReadData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			r.dropFrame(frame.Event, err)
			return
		}
		if data.MessageID == "" {
			r.dropFrame(frame.Event, errMissingField("messageId"))
			return
		}
		r.dispatch(&Event{Kind: KindMessageRead, MessageID: data.MessageID, ReadAt: data.ReadAt})
	case wire.EventTyping, wire.EventStopTyping:
		var data wire.TypingEventData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			r.dropFrame(frame.Event, err)
			return
		}
		if data.ConversationID == "" || data.UserID == "" {
			r.dropFrame(frame.Event, errMissingField("conversationId/userId"))
			return
		}
		kind := KindTypingStarted
		if frame.Event == wire.EventStopTyping {
			kind = KindTypingStopped
		}
		r.dispatch(&Event{Kind: kind, ConversationID: data.ConversationID, UserID: data.UserID})
	case wire.EventError:
		var serr wire.ServerError
		if err := json.Unmarshal(frame.Data, &serr); err != nil {
			r.dropFrame(frame.Event, err)
			return
		}
		// Command rejections are surfaced to the log; they carry no
		// correlation id, so there is nothing to route to.
		r.log.Warn().Str("code", serr.Code).Str("message", serr.Message).Msg("server rejected command")
	default:
		r.log.Debug().Str("event", frame.Event).Msg("unknown inbound event")
	}
}

// EmitPresenceChanged publishes a presence change for a user. Used by the
// presence tracker so other components observe status through the same
// typed stream as transport events.
func (r *Router) EmitPresenceChanged(userID, status string) {
	r.dispatch(&Event{Kind: KindPresenceChanged, UserID: userID, Status: status})
}

func (r *Router) dispatch(ev *Event) {
	r.mu.RLock()
	handlers := r.subs[ev.Kind]
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (r *Router) dropFrame(event string, err error) {
	r.log.Warn().Err(err).Str("event", event).Msg("dropping malformed frame")
}

type errMissingField string

func (e errMissingField) Error() string {
	return "missing field: " + string(e)
}
