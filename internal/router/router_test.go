package router

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/wire"
)

func newTestRouter() *Router {
	nop := zerolog.Nop()
	return New(&nop)
}

func frame(t *testing.T, event string, payload any) wire.Frame {
	t.Helper()

	f, err := wire.NewFrame(event, payload)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	return f
}

func TestNewMessageFrameDispatches(t *testing.T) {
	r := newTestRouter()

	var got *Event
	r.Subscribe(KindNewMessage, func(ev *Event) { got = ev })

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.HandleFrame(frame(t, wire.EventNewMessage, wire.NewMessageData{Message: wire.Message{
		ID:             "m1",
		ConversationID: "dm:a:b",
		SenderID:       "b",
		Body:           "hello",
		CreatedAt:      created,
	}}))

	if got == nil {
		t.Fatal("event not dispatched")
	}
	if got.Message.ID != "m1" || got.Message.SenderID != "b" || got.Message.Body != "hello" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.Message.CreatedAt.Equal(created) {
		t.Fatalf("created-at mangled: %v", got.Message.CreatedAt)
	}
}

func TestNotificationFrameMapsToNotificationKind(t *testing.T) {
	r := newTestRouter()

	var kinds []Kind
	r.Subscribe(KindNewMessage, func(ev *Event) { kinds = append(kinds, ev.Kind) })
	r.Subscribe(KindNotification, func(ev *Event) { kinds = append(kinds, ev.Kind) })

	r.HandleFrame(frame(t, wire.EventNewNotification, wire.NewMessageData{Message: wire.Message{ID: "n1", Body: "notice"}}))

	if len(kinds) != 1 || kinds[0] != KindNotification {
		t.Fatalf("expected one notification event, got %v", kinds)
	}
}

func TestMalformedFrameIsDroppedNotPropagated(t *testing.T) {
	r := newTestRouter()

	called := false
	r.Subscribe(KindNewMessage, func(*Event) { called = true })
	r.Subscribe(KindMessageRead, func(*Event) { called = true })
	r.Subscribe(KindTypingStarted, func(*Event) { called = true })

	r.HandleFrame(wire.Frame{Event: wire.EventNewMessage, Data: json.RawMessage(`{not json`)})
	r.HandleFrame(wire.Frame{Event: wire.EventMessageRead, Data: json.RawMessage(`{}`)})
	r.HandleFrame(wire.Frame{Event: wire.EventTyping, Data: json.RawMessage(`{"conversationId":""}`)})
	r.HandleFrame(wire.Frame{Event: "mystery_event"})

	if called {
		t.Fatal("malformed frames must not reach subscribers")
	}
}

func TestServerErrorFrameIsLoggedNotDispatched(t *testing.T) {
	r := newTestRouter()

	called := false
	for _, k := range []Kind{KindNewMessage, KindNotification, KindMessageRead, KindTypingStarted, KindTypingStopped, KindPresenceChanged} {
		r.Subscribe(k, func(*Event) { called = true })
	}

	r.HandleFrame(frame(t, wire.EventError, wire.ServerError{Code: wire.ErrCodeNotInRoom, Message: "not in room"}))

	if called {
		t.Fatal("error frames carry no domain event")
	}
}

func TestAllSubscribersReceiveEachEvent(t *testing.T) {
	r := newTestRouter()

	count := 0
	r.Subscribe(KindTypingStarted, func(*Event) { count++ })
	r.Subscribe(KindTypingStarted, func(*Event) { count++ })

	r.HandleFrame(frame(t, wire.EventTyping, wire.TypingEventData{ConversationID: "c1", UserID: "bob"}))

	if count != 2 {
		t.Fatalf("expected both subscribers called, got %d", count)
	}
}

func TestEventsDeliveredInFrameOrder(t *testing.T) {
	r := newTestRouter()

	var order []string
	r.Subscribe(KindNewMessage, func(ev *Event) { order = append(order, ev.Message.ID) })

	for _, id := range []string{"m1", "m2", "m3"} {
		r.HandleFrame(frame(t, wire.EventNewMessage, wire.NewMessageData{Message: wire.Message{ID: id}}))
	}

	if len(order) != 3 || order[0] != "m1" || order[1] != "m2" || order[2] != "m3" {
		t.Fatalf("expected FIFO delivery, got %v", order)
	}
}

func TestTypingFrames(t *testing.T) {
	r := newTestRouter()

	var events []*Event
	r.Subscribe(KindTypingStarted, func(ev *Event) { events = append(events, ev) })
	r.Subscribe(KindTypingStopped, func(ev *Event) { events = append(events, ev) })

	r.HandleFrame(frame(t, wire.EventTyping, wire.TypingEventData{ConversationID: "c1", UserID: "bob"}))
	r.HandleFrame(frame(t, wire.EventStopTyping, wire.TypingEventData{ConversationID: "c1", UserID: "bob"}))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindTypingStarted || events[1].Kind != KindTypingStopped {
		t.Fatalf("unexpected kinds: %v, %v", events[0].Kind, events[1].Kind)
	}
	if events[0].ConversationID != "c1" || events[0].UserID != "bob" {
		t.Fatalf("unexpected typing event: %+v", events[0])
	}
}

func TestMessageReadFrame(t *testing.T) {
	r := newTestRouter()

	var got *Event
	r.Subscribe(KindMessageRead, func(ev *Event) { got = ev })

	readAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.HandleFrame(frame(t, wire.EventMessageRead, wire.MessageReadData{MessageID: "m9", ReadAt: readAt}))

	if got == nil || got.MessageID != "m9" || !got.ReadAt.Equal(readAt) {
		t.Fatalf("unexpected read receipt: %+v", got)
	}
}

func TestEmitPresenceChanged(t *testing.T) {
	r := newTestRouter()

	var got *Event
	r.Subscribe(KindPresenceChanged, func(ev *Event) { got = ev })

	r.EmitPresenceChanged("alice", "away")

	if got == nil || got.UserID != "alice" || got.Status != "away" {
		t.Fatalf("unexpected presence event: %+v", got)
	}
}
