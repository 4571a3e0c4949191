// Package dispatch is the façade the presentation layer calls: validated
// optimistic sends, idempotent room membership, bulk read receipts and
// typing passthrough. It is also where room subscriptions are replayed
// after a reconnect.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/conn"
	"github.com/internlink/realtime/internal/convo"
	"github.com/internlink/realtime/internal/session"
	"github.com/internlink/realtime/internal/typing"
	"github.com/internlink/realtime/internal/wire"
)

// ErrEmptyBody rejects a send before any transport interaction.
var ErrEmptyBody = errors.New("dispatch: empty message body")

// Transport is the slice of the connection manager the dispatcher needs.
type Transport interface {
	Send(ctx context.Context, event string, payload any) error
	OnStateChange(fn func(conn.State))
}

// Reconciler persists sends through the collaborator REST API and is the
// fallback reconcile path when the socket acknowledgment is lost.
type Reconciler interface {
	SendMessage(ctx context.Context, receiverID, body, msgType string) (wire.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) (time.Time, error)
}

// Dispatcher coordinates local user actions against the transport and store.
type Dispatcher struct {
	sess   *session.Session
	tr     Transport
	store  *convo.Store
	typing *typing.Coordinator
	rest   Reconciler
	log    *zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTyping wires the typing coordinator so sends cancel the local
// typing-stop countdown.
func WithTyping(t *typing.Coordinator) Option {
	return func(d *Dispatcher) { d.typing = t }
}

// WithReconciler wires the REST fallback path.
func WithReconciler(r Reconciler) Option {
	return func(d *Dispatcher) { d.rest = r }
}

// WithLogger attaches a logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = logger }
}

// New builds a dispatcher and installs its hooks: the store's mark-read
// intent and the transport's reconnect resubscription.
func New(sess *session.Session, tr Transport, store *convo.Store, opts ...Option) *Dispatcher {
	nop := zerolog.Nop()
	d := &Dispatcher{
		sess:  sess,
		tr:    tr,
		store: store,
		log:   &nop,
	}
	for _, opt := range opts {
		opt(d)
	}

	store.OnMarkRead(func(conversationID, otherUserID string) {
		if otherUserID == "" {
			return
		}
		err := d.tr.Send(context.Background(), wire.EventMarkMessagesRead, wire.MarkMessagesReadData{FromUserID: otherUserID})
		if errors.Is(err, conn.ErrNotConnected) && d.rest != nil {
			go d.restReadReceipts(context.Background(), conversationID, otherUserID)
			return
		}
		if err != nil {
			d.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("mark-read intent not sent")
		}
	})

	tr.OnStateChange(func(s conn.State) {
		if s == conn.StateConnected {
			go d.resubscribe()
		}
	})

	return d
}

// JoinConversation subscribes to the room shared with otherUserID. Joining
// an already-joined conversation is a no-op; UI re-renders may call this
// repeatedly for the same logical transition.
func (d *Dispatcher) JoinConversation(ctx context.Context, otherUserID string) error {
	convID := convo.DirectID(d.sess.UserID, otherUserID)
	if d.store.Joined(convID) {
		return nil
	}

	d.store.SetJoined(convID, otherUserID, true)
	err := d.tr.Send(ctx, wire.EventJoinConversation, wire.JoinConversationData{OtherUserID: otherUserID})
	if errors.Is(err, conn.ErrNotConnected) {
		// Membership is recorded; the reconnect path replays the join.
		d.log.Debug().Str("conversation_id", convID).Msg("join deferred until reconnect")
		return nil
	}
	return err
}

// LeaveConversation drops the room subscription. Leaving an unjoined
// conversation is a no-op.
func (d *Dispatcher) LeaveConversation(ctx context.Context, otherUserID string) error {
	convID := convo.DirectID(d.sess.UserID, otherUserID)
	if !d.store.Joined(convID) {
		return nil
	}

	d.store.SetJoined(convID, otherUserID, false)
	err := d.tr.Send(ctx, wire.EventLeaveConversation, wire.JoinConversationData{OtherUserID: otherUserID})
	if errors.Is(err, conn.ErrNotConnected) {
		return nil
	}
	return err
}

// SendMessage validates the body, appends a provisional message, and
// forwards the send. A not-connected transport surfaces as a retryable
// error wrapping conn.ErrNotConnected; the REST path then persists the
// message and reconciles the provisional. On a successful socket send the
// server echo is the sole acknowledgment, so the message is never
// submitted twice.
func (d *Dispatcher) SendMessage(ctx context.Context, otherUserID, body string) (convo.Message, error) {
	if strings.TrimSpace(body) == "" {
		return convo.Message{}, ErrEmptyBody
	}

	convID := convo.DirectID(d.sess.UserID, otherUserID)
	prov := d.store.AppendOutgoing(convID, otherUserID, body)

	if d.typing != nil {
		d.typing.MessageSent(convID)
	}

	sendErr := d.tr.Send(ctx, wire.EventSendMessage, wire.SendMessageData{
		ReceiverID: otherUserID,
		Message:    body,
		Type:       "text",
	})

	if sendErr != nil {
		if d.rest != nil {
			go d.reconcileViaRest(prov.ID, convID, otherUserID, body)
		}
		return prov, fmt.Errorf("send message: %w", sendErr)
	}
	return prov, nil
}

// MarkRead emits a bulk read receipt for all unread messages from fromUserID
// in the active conversation and resets its unread count.
func (d *Dispatcher) MarkRead(ctx context.Context, fromUserID string) error {
	active := d.store.ActiveConversation()
	if active == "" {
		return nil
	}
	d.store.ResetUnread(active)

	err := d.tr.Send(ctx, wire.EventMarkMessagesRead, wire.MarkMessagesReadData{FromUserID: fromUserID})
	if errors.Is(err, conn.ErrNotConnected) && d.rest != nil {
		d.restReadReceipts(ctx, active, fromUserID)
		return nil
	}
	return err
}

// restReadReceipts issues per-message REST read receipts for every unread
// counterpart message in the conversation. Fallback for a bulk receipt that
// could not travel over the socket.
func (d *Dispatcher) restReadReceipts(ctx context.Context, conversationID, fromUserID string) {
	for _, id := range d.store.UnreadFrom(conversationID, fromUserID) {
		if _, err := d.rest.MarkMessageRead(ctx, id); err != nil {
			d.log.Debug().Err(err).Str("message_id", id).Msg("rest read receipt failed")
		}
	}
}

// Keystroke forwards local typing activity for the conversation with
// otherUserID.
func (d *Dispatcher) Keystroke(otherUserID string) {
	if d.typing == nil {
		return
	}
	d.typing.Keystroke(convo.DirectID(d.sess.UserID, otherUserID), otherUserID)
}

func (d *Dispatcher) reconcileViaRest(provisionalID, convID, otherUserID, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	server, err := d.rest.SendMessage(ctx, otherUserID, body, "text")
	if err != nil {
		d.log.Warn().Err(err).Str("conversation_id", convID).Msg("rest persist failed")
		return
	}
	if server.ConversationID == "" {
		server.ConversationID = convID
	}
	d.store.Reconcile(provisionalID, convo.Message{
		ID:             server.ID,
		ConversationID: server.ConversationID,
		SenderID:       d.sess.UserID,
		Body:           server.Body,
		CreatedAt:      server.CreatedAt,
		ReadAt:         server.ReadAt,
		Status:         convo.StatusSent,
	})
}

func (d *Dispatcher) resubscribe() {
	for _, conv := range d.store.JoinedConversations() {
		if conv.OtherUserID == "" {
			continue
		}
		if err := d.tr.Send(context.Background(), wire.EventJoinConversation, wire.JoinConversationData{OtherUserID: conv.OtherUserID}); err != nil {
			d.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("rejoin failed")
		}
	}
}
