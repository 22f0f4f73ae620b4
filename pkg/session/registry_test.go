package session_test

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/notifylab/fanout/pkg/session"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *session.Registry {
	t.Helper()
	r := session.NewRegistry(100, ttl, 10*time.Millisecond)
	t.Cleanup(r.Close)
	return r
}

func register(t *testing.T, r *session.Registry, channelID, recipientID string) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	if err := r.Register(session.NewSession(server, channelID, recipientID, "local")); err != nil {
		t.Fatalf("register %s: %v", recipientID, err)
	}
	return client
}

func TestLookupReturnsChannelSessions(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	register(t, r, "c1", "alice")
	register(t, r, "c1", "bob")
	register(t, r, "c2", "carol")

	locations, err := r.Lookup("c1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("got %d sessions for c1, want 2", len(locations))
	}

	empty, err := r.Lookup("nope")
	if err != nil {
		t.Fatalf("lookup of unknown channel must not error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown channel must have no sessions, got %d", len(empty))
	}
}

func TestDeliverReachesTheConnection(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	client := register(t, r, "c1", "alice")

	payload := []byte("new message in c1")
	got := make(chan []byte, 1)
	go func() {
		data, err := util.ReadWithLength(client)
		if err != nil {
			close(got)
			return
		}
		got <- data
	}()

	if err := r.Deliver("alice", payload); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	select {
	case data, ok := <-got:
		if !ok || !bytes.Equal(data, payload) {
			t.Fatalf("client read %q, want %q", data, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("payload never reached the client connection")
	}
}

func TestDeliverWithoutSessionIsUnavailable(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	if err := r.Deliver("ghost", []byte("x")); err == nil {
		t.Fatal("delivering to a recipient with no session must fail")
	}
}

func TestRegisterReplacesPreviousSession(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	register(t, r, "c1", "alice")
	register(t, r, "c1", "alice")

	if got := r.Count(); got != 1 {
		t.Fatalf("re-registering must replace, count is %d", got)
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	r := newTestRegistry(t, 30*time.Millisecond)
	register(t, r, "c1", "alice")

	deadline := time.Now().Add(2 * time.Second)
	for r.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle session never swept")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := r.SessionFor("alice"); ok {
		t.Fatal("swept session still resolvable")
	}
}

func TestHeartbeatKeepsSessionAlive(t *testing.T) {
	r := newTestRegistry(t, 50*time.Millisecond)
	register(t, r, "c1", "alice")

	for i := 0; i < 10; i++ {
		if !r.Heartbeat("alice") {
			t.Fatal("heartbeat for a live session must succeed")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if r.Count() != 1 {
		t.Fatal("heartbeated session must survive the sweeper")
	}
}

func TestRegisterRejectsWhenFull(t *testing.T) {
	r := session.NewRegistry(1, time.Minute, time.Minute)
	t.Cleanup(r.Close)

	register(t, r, "c1", "alice")

	_, server := net.Pipe()
	err := r.Register(session.NewSession(server, "c1", "bob", "local"))
	if !errors.Is(err, types.ErrCapacityExceeded) {
		t.Fatalf("full registry must reject with capacity error, got %v", err)
	}

	// Re-registering an existing recipient replaces, it does not count twice.
	register(t, r, "c1", "alice")
}
