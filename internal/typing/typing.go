// Package typing derives ephemeral "user is typing" state from inbound
// events and local keystrokes. Inbound entries expire on a local timer,
// deliberately longer than the sender's debounce window, so a lost
// stop-typing signal cannot leave a stale indicator behind.
package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/router"
	"github.com/internlink/realtime/internal/wire"
)

// SendFunc delivers an outbound typing frame. Wired to the connection
// manager's Send; failures are logged, never surfaced to the typist.
type SendFunc func(event string, payload any) error

type broadcast struct {
	toUserID string
	timer    *clock.Timer
}

// Coordinator owns every TypingSignal, keyed by (conversation, user).
type Coordinator struct {
	clk      clock.Clock
	debounce time.Duration
	expiry   time.Duration
	send     SendFunc
	log      *zerolog.Logger

	mu       sync.Mutex
	outbound map[string]*broadcast
	inbound  map[string]map[string]*clock.Timer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock substitutes the wall clock for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = logger }
}

// New builds a coordinator. debounce bounds outbound typing_start frames to
// one per window; expiry removes inbound signals absent a refresh.
func New(debounce, expiry time.Duration, send SendFunc, opts ...Option) *Coordinator {
	nop := zerolog.Nop()
	c := &Coordinator{
		clk:      clock.New(),
		debounce: debounce,
		expiry:   expiry,
		send:     send,
		log:      &nop,
		outbound: make(map[string]*broadcast),
		inbound:  make(map[string]map[string]*clock.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind subscribes the coordinator to inbound typing events.
func (c *Coordinator) Bind(r *router.Router) {
	r.Subscribe(router.KindTypingStarted, func(ev *router.Event) {
		c.remoteStarted(ev.ConversationID, ev.UserID)
	})
	r.Subscribe(router.KindTypingStopped, func(ev *router.Event) {
		c.remoteStopped(ev.ConversationID, ev.UserID)
	})
}

// Keystroke records local typing activity in an open conversation. The first
// keystroke in a quiet window broadcasts typing_start; every keystroke
// restarts the countdown that eventually broadcasts typing_stop.
func (c *Coordinator) Keystroke(conversationID, toUserID string) {
	c.mu.Lock()
	b := c.outbound[conversationID]
	start := b == nil
	if start {
		b = &broadcast{toUserID: toUserID}
		b.timer = c.clk.AfterFunc(c.debounce, func() {
			c.countdownElapsed(conversationID)
		})
		c.outbound[conversationID] = b
	} else {
		b.timer.Reset(c.debounce)
	}
	c.mu.Unlock()

	if start {
		c.sendSignal(wire.EventTypingStart, toUserID)
	}
}

// MessageSent cancels the countdown and broadcasts typing_stop immediately.
// Called on every explicit send in the conversation.
func (c *Coordinator) MessageSent(conversationID string) {
	c.mu.Lock()
	b := c.outbound[conversationID]
	if b != nil {
		b.timer.Stop()
		delete(c.outbound, conversationID)
	}
	c.mu.Unlock()

	if b != nil {
		c.sendSignal(wire.EventTypingStop, b.toUserID)
	}
}

// TypingUsers lists counterparts currently typing in a conversation, sorted.
func (c *Coordinator) TypingUsers(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := c.inbound[conversationID]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) countdownElapsed(conversationID string) {
	c.mu.Lock()
	b := c.outbound[conversationID]
	delete(c.outbound, conversationID)
	c.mu.Unlock()

	if b != nil {
		c.sendSignal(wire.EventTypingStop, b.toUserID)
	}
}

func (c *Coordinator) remoteStarted(conversationID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := c.inbound[conversationID]
	if users == nil {
		users = make(map[string]*clock.Timer)
		c.inbound[conversationID] = users
	}
	if timer, ok := users[userID]; ok {
		timer.Reset(c.expiry)
		return
	}
	users[userID] = c.clk.AfterFunc(c.expiry, func() {
		c.remoteStopped(conversationID, userID)
	})
}

func (c *Coordinator) remoteStopped(conversationID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := c.inbound[conversationID]
	if users == nil {
		return
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(c.inbound, conversationID)
	}
}

func (c *Coordinator) sendSignal(event, toUserID string) {
	if c.send == nil {
		return
	}
	if err := c.send(event, wire.TypingData{ToUserID: toUserID}); err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("typing signal not sent")
	}
}
