// Package conn owns the lifecycle of the persistent transport: dialing,
// reconnecting with backoff, and frame sends. No other component holds a
// transport handle; they observe state changes or request sends through the
// Manager.
package conn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/session"
	"github.com/internlink/realtime/internal/wire"
)

var (
	// ErrAlreadyConnected is returned by Connect when a connection for a
	// different session is live.
	ErrAlreadyConnected = errors.New("conn: already connected for another session")
	// ErrNotConnected is returned by Send when no link is established.
	// Callers must treat it as retryable.
	ErrNotConnected = errors.New("conn: not connected")
)

// FrameHandler consumes inbound frames in transport-receive order.
type FrameHandler func(wire.Frame)

// Options tunes the manager. Zero values fall back to conservative defaults.
type Options struct {
	Endpoint      string
	DialTimeout   time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	MaxReconnects int

	Clock  clock.Clock
	Logger *zerolog.Logger
}

func (o *Options) fill() {
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap == 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 8
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// Manager maintains exactly one live transport per authenticated session.
type Manager struct {
	opts    Options
	handler FrameHandler
	log     *zerolog.Logger

	mu       sync.Mutex
	state    State
	sess     *session.Session
	ws       *websocket.Conn
	cancel   context.CancelFunc
	gen      int
	watchers []func(State)
}

// NewManager builds a manager that forwards every inbound frame to handler.
func NewManager(opts Options, handler FrameHandler) *Manager {
	opts.fill()
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{
		opts:    opts,
		handler: handler,
		log:     logger,
		state:   StateDisconnected,
	}
}

// OnStateChange registers a watcher invoked on every state transition.
// Watchers run synchronously on the transitioning goroutine and must not
// block; a transition to StateFailed is the degraded-mode signal.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the session the manager is connected (or connecting) for.
func (m *Manager) Session() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Connect starts the connection lifecycle for the given session. It fails
// fast with ErrAlreadyConnected when a different session's connection is
// live, and is a no-op for the same session. Offline sessions never dial:
// they settle into a permanent, non-erroring disconnected state.
func (m *Manager) Connect(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("conn: nil session")
	}

	m.mu.Lock()
	if m.state.live() {
		if m.sess != nil && m.sess.UserID != sess.UserID {
			m.mu.Unlock()
			return ErrAlreadyConnected
		}
		m.mu.Unlock()
		return nil
	}

	m.sess = sess
	if sess.Offline {
		m.mu.Unlock()
		m.log.Info().Str("user_id", sess.UserID).Msg("offline session, skipping realtime connection")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.setState(gen, StateConnecting)
	go m.run(runCtx, gen)
	return nil
}

// Disconnect tears down the transport and cancels any pending backoff timer.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.sess = nil
	gen := m.gen
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.setState(gen, StateDisconnected)
}

// Send writes one frame. It fails with ErrNotConnected unless the link is
// established; callers decide whether to queue, retry, or surface the failure.
func (m *Manager) Send(ctx context.Context, event string, payload any) error {
	m.mu.Lock()
	ws := m.ws
	state := m.state
	m.mu.Unlock()

	if state != StateConnected || ws == nil {
		return ErrNotConnected
	}

	frame, err := wire.NewFrame(event, payload)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, ws, frame); err != nil {
		return fmt.Errorf("write %s frame: %w", event, err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, gen int) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(gen)))
	failures := 0

	for {
		ws, err := m.dial(ctx)
		if ctx.Err() != nil {
			m.setState(gen, StateDisconnected)
			return
		}

		if err == nil {
			if helloErr := m.hello(ctx, ws); helloErr != nil {
				_ = ws.Close(websocket.StatusPolicyViolation, "hello rejected")
				err = helloErr
			}
		}
		if err == nil {
			m.mu.Lock()
			m.ws = ws
			m.mu.Unlock()

			failures = 0
			m.setState(gen, StateConnected)

			readErr := m.readLoop(ctx, ws)

			m.mu.Lock()
			m.ws = nil
			m.mu.Unlock()
			m.closeConn(ws, readErr)

			if ctx.Err() != nil {
				m.setState(gen, StateDisconnected)
				return
			}
			m.log.Warn().Err(readErr).Msg("connection lost")
		} else {
			m.log.Warn().Err(err).Str("endpoint", m.opts.Endpoint).Msg("connection attempt failed")
		}

		failures++
		if failures > m.opts.MaxReconnects {
			m.log.Error().Int("failures", failures-1).Msg("reconnect budget exhausted, entering degraded mode")
			m.setState(gen, StateFailed)
			return
		}

		m.setState(gen, StateReconnecting)

		delay := nextDelay(failures, m.opts.BackoffBase, m.opts.BackoffCap, rnd)
		timer := m.opts.Clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setState(gen, StateDisconnected)
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, m.opts.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.opts.Endpoint, err)
	}
	return ws, nil
}

// hello introduces the session on a fresh link. The server accepts no
// command before it.
func (m *Manager) hello(ctx context.Context, ws *websocket.Conn) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return errors.New("conn: no session for hello")
	}

	frame, err := wire.NewFrame(wire.EventHello, wire.HelloData{UserID: sess.UserID, Token: sess.Token})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, frame); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	return nil
}

func (m *Manager) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		var frame wire.Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			return err
		}
		if m.handler != nil {
			m.handler(frame)
		}
	}
}

func (m *Manager) closeConn(ws *websocket.Conn, readErr error) {
	status := websocket.StatusNormalClosure
	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		if s := websocket.CloseStatus(readErr); s != -1 {
			status = s
		}
	}
	_ = ws.Close(status, "closing")
}

// setState transitions to s unless a newer Connect generation superseded gen.
func (m *Manager) setState(gen int, s State) {
	m.mu.Lock()
	if gen != m.gen || m.state == s {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = s
	watchers := make([]func(State), len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	m.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("connection state change")
	for _, fn := range watchers {
		fn(s)
	}
}
