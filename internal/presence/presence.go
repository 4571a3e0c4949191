// Package presence maps connection state to a user-facing presence label and
// broadcasts explicit status overrides.
package presence

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/conn"
	"github.com/internlink/realtime/internal/router"
	"github.com/internlink/realtime/internal/wire"
)

// Status is a presence label.
type Status string

const (
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusConnecting Status = "connecting"
	StatusAway       Status = "away"
)

// SendFunc delivers the update_status frame.
type SendFunc func(event string, payload any) error

// Tracker exposes the local session's presence label and, where the server
// relays them, counterparties' labels. The label reflects the most recent of
// the connection-state mapping and the explicit override.
type Tracker struct {
	selfID string
	send   SendFunc
	clk    clock.Clock
	log    *zerolog.Logger
	emit   func(userID, status string)

	mu         sync.Mutex
	connStatus Status
	connAt     time.Time
	override   Status
	overrideAt time.Time
	peers      map[string]Status
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock substitutes the wall clock for tests.
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) { t.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(t *Tracker) { t.log = logger }
}

// New builds a tracker for the local user.
func New(selfID string, send SendFunc, opts ...Option) *Tracker {
	nop := zerolog.Nop()
	t := &Tracker{
		selfID:     selfID,
		send:       send,
		clk:        clock.New(),
		log:        &nop,
		connStatus: StatusOffline,
		peers:      make(map[string]Status),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind hooks the tracker into the connection manager's state stream and the
// router, so presence changes surface as typed domain events.
func (t *Tracker) Bind(m *conn.Manager, r *router.Router) {
	t.emit = r.EmitPresenceChanged
	r.Subscribe(router.KindPresenceChanged, func(ev *router.Event) {
		if ev.UserID == t.selfID {
			return
		}
		t.mu.Lock()
		t.peers[ev.UserID] = Status(ev.Status)
		t.mu.Unlock()
	})
	m.OnStateChange(t.ObserveConnState)
}

// ObserveConnState folds a connection state into the presence label.
func (t *Tracker) ObserveConnState(s conn.State) {
	status := StatusOffline
	switch s {
	case conn.StateConnected:
		status = StatusOnline
	case conn.StateConnecting, conn.StateReconnecting:
		status = StatusConnecting
	}

	t.mu.Lock()
	t.connStatus = status
	t.connAt = t.clk.Now()
	t.mu.Unlock()

	if t.emit != nil {
		t.emit(t.selfID, string(status))
	}
}

// SetStatus applies an explicit override and broadcasts it to the server.
func (t *Tracker) SetStatus(status Status) {
	t.mu.Lock()
	t.override = status
	t.overrideAt = t.clk.Now()
	t.mu.Unlock()

	if t.send != nil {
		if err := t.send(wire.EventUpdateStatus, wire.UpdateStatusData{Status: string(status)}); err != nil {
			t.log.Debug().Err(err).Str("status", string(status)).Msg("status update not sent")
		}
	}
	if t.emit != nil {
		t.emit(t.selfID, string(status))
	}
}

// Self returns the local presence label: the later of the connection-state
// mapping and the explicit override.
func (t *Tracker) Self() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.override != "" && !t.overrideAt.Before(t.connAt) {
		return t.override
	}
	return t.connStatus
}

// Peer returns a counterpart's last known label, defaulting to offline.
func (t *Tracker) Peer(userID string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if status, ok := t.peers[userID]; ok {
		return status
	}
	return StatusOffline
}
