package presence

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/internlink/realtime/internal/conn"
	"github.com/internlink/realtime/internal/router"
	"github.com/internlink/realtime/internal/wire"
)

func TestConnStateMapsToPresenceLabel(t *testing.T) {
	mock := clock.NewMock()
	tr := New("alice", nil, WithClock(mock))

	cases := []struct {
		state conn.State
		want  Status
	}{
		{conn.StateConnecting, StatusConnecting},
		{conn.StateConnected, StatusOnline},
		{conn.StateReconnecting, StatusConnecting},
		{conn.StateFailed, StatusOffline},
		{conn.StateDisconnected, StatusOffline},
	}
	for _, tc := range cases {
		mock.Add(time.Second)
		tr.ObserveConnState(tc.state)
		if got := tr.Self(); got != tc.want {
			t.Fatalf("state %v: presence = %v, want %v", tc.state, got, tc.want)
		}
	}
}

func TestExplicitOverrideWinsWhileNewer(t *testing.T) {
	mock := clock.NewMock()

	var sent []wire.UpdateStatusData
	send := func(event string, payload any) error {
		if event != wire.EventUpdateStatus {
			t.Fatalf("unexpected event %s", event)
		}
		sent = append(sent, payload.(wire.UpdateStatusData))
		return nil
	}

	tr := New("alice", send, WithClock(mock))

	tr.ObserveConnState(conn.StateConnected)
	mock.Add(time.Second)
	tr.SetStatus(StatusAway)

	if got := tr.Self(); got != StatusAway {
		t.Fatalf("presence = %v, want away", got)
	}
	if len(sent) != 1 || sent[0].Status != "away" {
		t.Fatalf("update_status not broadcast: %v", sent)
	}

	// A later connection-state change supersedes the override.
	mock.Add(time.Second)
	tr.ObserveConnState(conn.StateReconnecting)
	if got := tr.Self(); got != StatusConnecting {
		t.Fatalf("presence = %v, want connecting", got)
	}
}

func TestBindPublishesAndTracksPeers(t *testing.T) {
	nop := zerolog.Nop()
	rt := router.New(&nop)

	mock := clock.NewMock()
	mgr := conn.NewManager(conn.Options{Endpoint: "ws://localhost:0/ws"}, nil)
	tr := New("alice", nil, WithClock(mock))
	tr.Bind(mgr, rt)

	var events []*router.Event
	rt.Subscribe(router.KindPresenceChanged, func(ev *router.Event) { events = append(events, ev) })

	tr.SetStatus(StatusAway)
	if len(events) != 1 || events[0].UserID != "alice" || events[0].Status != "away" {
		t.Fatalf("presence change not published: %v", events)
	}

	rt.EmitPresenceChanged("bob", "online")
	if got := tr.Peer("bob"); got != StatusOnline {
		t.Fatalf("peer presence = %v, want online", got)
	}
	if got := tr.Peer("stranger"); got != StatusOffline {
		t.Fatalf("unknown peer = %v, want offline", got)
	}
}
