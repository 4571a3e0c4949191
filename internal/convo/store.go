// Package convo is the client-side source of truth for conversations,
// message logs, unread counts and read receipts. All cross-component effects
// reach it through the event router or explicit mutation entry points;
// nothing else mutates its entities.
package convo

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/router"
)

// Archiver persists acknowledged messages across restarts. Implementations
// live outside the store; a nil archiver disables archiving.
type Archiver interface {
	Save(Message) error
	LoadAll() ([]Message, error)
	Close() error
}

type conversation struct {
	id          string
	otherUserID string
	unread      int
	joined      bool
	log         []*Message
	byID        map[string]*Message
}

// Store owns Conversation and Message entities and the unread ledger.
type Store struct {
	selfID     string
	log        *zerolog.Logger
	clk        clock.Clock
	ackTimeout time.Duration
	archive    Archiver

	mu            sync.Mutex
	convos        map[string]*conversation
	activeID      string
	notifications int
	ackTimers     map[string]*clock.Timer
	onMarkRead    func(conversationID, otherUserID string)
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the wall clock, letting tests drive ack timeouts.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) { s.clk = clk }
}

// WithAckTimeout bounds how long a provisional message may stay pending.
func WithAckTimeout(d time.Duration) Option {
	return func(s *Store) { s.ackTimeout = d }
}

// WithLogger attaches a logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) { s.log = logger }
}

// WithArchive attaches a message archive. Archived messages are loaded into
// the store immediately and count as already read.
func WithArchive(a Archiver) Option {
	return func(s *Store) { s.archive = a }
}

// NewStore builds a store for the local user.
func NewStore(selfID string, opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		selfID:     selfID,
		log:        &nop,
		clk:        clock.New(),
		ackTimeout: 10 * time.Second,
		convos:     make(map[string]*conversation),
		ackTimers:  make(map[string]*clock.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.archive != nil {
		s.loadArchive()
	}
	return s
}

// Bind subscribes the store to the router's inbound stream.
func (s *Store) Bind(r *router.Router) {
	r.Subscribe(router.KindNewMessage, func(ev *router.Event) {
		s.AppendIncoming(fromRouterMessage(ev.Message))
	})
	r.Subscribe(router.KindNotification, func(ev *router.Event) {
		s.IncrementNotifications()
	})
	r.Subscribe(router.KindMessageRead, func(ev *router.Event) {
		s.ApplyReadReceipt(ev.MessageID, ev.ReadAt)
	})
}

// OnMarkRead registers the upstream mark-read intent hook, invoked when
// opening a conversation that holds unread counterpart messages.
func (s *Store) OnMarkRead(fn func(conversationID, otherUserID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMarkRead = fn
}

// OpenConversation marks a conversation active, resets its unread count to
// zero, and emits a mark-read intent for counterpart messages not yet read.
// Exactly one conversation is active at a time.
func (s *Store) OpenConversation(id string) {
	var emit func(string, string)
	var otherID string

	s.mu.Lock()
	s.activeID = id
	conv := s.convos[id]
	if conv != nil {
		conv.unread = 0
		otherID = conv.otherUserID
		if s.onMarkRead != nil && s.hasUnreadFromCounterpartLocked(conv) {
			emit = s.onMarkRead
		}
	}
	s.mu.Unlock()

	if emit != nil {
		emit(id, otherID)
	}
}

// ActiveConversation returns the id of the active conversation, or "".
func (s *Store) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// EnsureConversation creates the conversation record if absent.
func (s *Store) EnsureConversation(id, otherUserID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(id, otherUserID)
}

// AppendIncoming inserts a server-relayed message into its conversation's
// ordered log. Messages for inactive conversations bump that conversation's
// unread count by exactly one; messages for the active one do not. Own
// echoes reconcile a matching pending provisional instead of duplicating.
func (s *Store) AppendIncoming(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The counterpart is the sender, except for own echoes where it is the
	// receiver. The fallback conversation id derives from the counterpart so
	// an echo without an id still reaches the thread holding its provisional.
	otherID := m.SenderID
	if otherID == s.selfID {
		otherID = m.ReceiverID
	}
	convID := m.ConversationID
	if convID == "" {
		convID = DirectID(otherID, s.selfID)
		m.ConversationID = convID
	}
	conv := s.ensureLocked(convID, otherID)

	if m.ID != "" {
		if _, exists := conv.byID[m.ID]; exists {
			return
		}
	}

	if m.SenderID == s.selfID {
		if prov := s.oldestPendingLocked(conv, m.Body); prov != nil {
			s.reconcileLocked(conv, prov, m)
			return
		}
	}

	m.Status = StatusSent
	s.insertLocked(conv, &m)

	if m.SenderID != s.selfID && conv.id != s.activeID {
		conv.unread++
	}

	s.archiveSave(m)
}

// AppendOutgoing creates a provisional message for an optimistic send. The
// message shows up immediately with a pending marker and transitions to
// failed if no acknowledgment arrives within the ack timeout.
func (s *Store) AppendOutgoing(conversationID, otherUserID, body string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.ensureLocked(conversationID, otherUserID)
	m := &Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.selfID,
		ReceiverID:     otherUserID,
		Body:           body,
		CreatedAt:      s.clk.Now(),
		Status:         StatusPending,
	}
	s.insertLocked(conv, m)

	provID := m.ID
	s.ackTimers[provID] = s.clk.AfterFunc(s.ackTimeout, func() {
		s.expirePending(conversationID, provID)
	})

	return *m
}

// Reconcile swaps a provisional message for its acknowledged server copy,
// in place: the log position never changes and no duplicate appears. It
// reports whether the provisional id was found; reconciliation happens at
// most once per provisional id.
func (s *Store) Reconcile(provisionalID string, server Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.convos {
		if prov, ok := conv.byID[provisionalID]; ok {
			s.reconcileLocked(conv, prov, server)
			return true
		}
	}
	return false
}

// ApplyReadReceipt sets the read-at timestamp on a matching message. Unknown
// message ids are a no-op: the read state of an entity the client does not
// hold cannot affect local state.
func (s *Store) ApplyReadReceipt(messageID string, readAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.convos {
		if m, ok := conv.byID[messageID]; ok {
			at := readAt
			m.ReadAt = &at
			s.archiveSave(*m)
			return
		}
	}
}

// ResetUnread zeroes a conversation's unread count on an explicit local
// mark-read action.
func (s *Store) ResetUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.convos[conversationID]; conv != nil {
		conv.unread = 0
	}
}

// Unread returns a conversation's unread count.
func (s *Store) Unread(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.convos[conversationID]; conv != nil {
		return conv.unread
	}
	return 0
}

// IncrementNotifications bumps the global non-chat notification badge.
func (s *Store) IncrementNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications++
}

// Notifications returns the global notification badge count.
func (s *Store) Notifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications
}

// SetJoined records whether the local client holds a room subscription for
// the conversation.
func (s *Store) SetJoined(conversationID, otherUserID string, joined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.ensureLocked(conversationID, otherUserID)
	conv.joined = joined
}

// Joined reports whether the conversation has an active room subscription.
func (s *Store) Joined(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.convos[conversationID]; conv != nil {
		return conv.joined
	}
	return false
}

// JoinedConversations snapshots every conversation joined and not since
// left. The connection manager's reconnect path replays these.
func (s *Store) JoinedConversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Conversation
	for _, conv := range s.convos {
		if conv.joined {
			out = append(out, s.snapshotLocked(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Conversations snapshots the conversation list, most recent activity first.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.convos))
	for _, conv := range s.convos {
		out = append(out, s.snapshotLocked(conv))
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].LastMessage, out[j].LastMessage
		switch {
		case li == nil && lj == nil:
			return out[i].ID < out[j].ID
		case li == nil:
			return false
		case lj == nil:
			return true
		case li.CreatedAt.Equal(lj.CreatedAt):
			return out[i].ID < out[j].ID
		default:
			return li.CreatedAt.After(lj.CreatedAt)
		}
	})
	return out
}

// Messages copies a conversation's ordered log.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.convos[conversationID]
	if conv == nil {
		return nil
	}
	out := make([]Message, len(conv.log))
	for i, m := range conv.log {
		out[i] = *m
	}
	return out
}

// UnreadFrom lists ids of unread counterpart messages in a conversation,
// oldest first. Used to build bulk read-receipt intents.
func (s *Store) UnreadFrom(conversationID, fromUserID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.convos[conversationID]
	if conv == nil {
		return nil
	}
	var ids []string
	for _, m := range conv.log {
		if m.SenderID == fromUserID && m.ReadAt == nil && m.Status == StatusSent {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Close releases the archive, if any.
func (s *Store) Close() error {
	if s.archive != nil {
		return s.archive.Close()
	}
	return nil
}

func (s *Store) ensureLocked(id, otherUserID string) *conversation {
	conv := s.convos[id]
	if conv == nil {
		conv = &conversation{
			id:   id,
			byID: make(map[string]*Message),
		}
		s.convos[id] = conv
	}
	if conv.otherUserID == "" && otherUserID != "" {
		conv.otherUserID = otherUserID
	}
	return conv
}

// insertLocked keeps the log ordered by created-at with id as tie-break.
func (s *Store) insertLocked(conv *conversation, m *Message) {
	idx := sort.Search(len(conv.log), func(i int) bool {
		other := conv.log[i]
		if !other.CreatedAt.Equal(m.CreatedAt) {
			return other.CreatedAt.After(m.CreatedAt)
		}
		return other.ID > m.ID
	})
	conv.log = append(conv.log, nil)
	copy(conv.log[idx+1:], conv.log[idx:])
	conv.log[idx] = m
	conv.byID[m.ID] = m
}

// reconcileLocked swaps provisional identity for the server one without
// moving the message in the log.
func (s *Store) reconcileLocked(conv *conversation, prov *Message, server Message) {
	if timer, ok := s.ackTimers[prov.ID]; ok {
		timer.Stop()
		delete(s.ackTimers, prov.ID)
	}
	delete(conv.byID, prov.ID)

	prov.ID = server.ID
	if !server.CreatedAt.IsZero() {
		prov.CreatedAt = server.CreatedAt
	}
	if server.ReadAt != nil {
		prov.ReadAt = server.ReadAt
	}
	prov.Status = StatusSent
	conv.byID[prov.ID] = prov

	s.archiveSave(*prov)
}

func (s *Store) oldestPendingLocked(conv *conversation, body string) *Message {
	for _, m := range conv.log {
		if m.Status == StatusPending && m.SenderID == s.selfID && m.Body == body {
			return m
		}
	}
	return nil
}

func (s *Store) hasUnreadFromCounterpartLocked(conv *conversation) bool {
	for _, m := range conv.log {
		if m.SenderID != s.selfID && m.ReadAt == nil {
			return true
		}
	}
	return false
}

func (s *Store) expirePending(conversationID, provisionalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ackTimers, provisionalID)
	conv := s.convos[conversationID]
	if conv == nil {
		return
	}
	m, ok := conv.byID[provisionalID]
	if !ok || m.Status != StatusPending {
		return
	}
	m.Status = StatusFailed
	s.log.Warn().Str("conversation_id", conversationID).Str("provisional_id", provisionalID).
		Msg("send not acknowledged in time, marking failed")
}

func (s *Store) snapshotLocked(conv *conversation) Conversation {
	snap := Conversation{
		ID:          conv.id,
		OtherUserID: conv.otherUserID,
		Unread:      conv.unread,
		Joined:      conv.joined,
		Active:      conv.id == s.activeID,
	}
	if n := len(conv.log); n > 0 {
		last := *conv.log[n-1]
		snap.LastMessage = &last
	}
	return snap
}

func (s *Store) archiveSave(m Message) {
	if s.archive == nil || m.Status != StatusSent || m.ID == "" {
		return
	}
	if err := s.archive.Save(m); err != nil {
		s.log.Warn().Err(err).Str("message_id", m.ID).Msg("archive save failed")
	}
}

func (s *Store) loadArchive() {
	msgs, err := s.archive.LoadAll()
	if err != nil {
		s.log.Warn().Err(err).Msg("archive load failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		m := m
		otherID := m.SenderID
		if otherID == s.selfID {
			otherID = ""
		}
		conv := s.ensureLocked(m.ConversationID, otherID)
		if _, exists := conv.byID[m.ID]; exists {
			continue
		}
		m.Status = StatusSent
		s.insertLocked(conv, &m)
	}
}

func fromRouterMessage(m router.Message) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
	}
}
