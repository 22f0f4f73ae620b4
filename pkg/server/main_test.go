package server_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/controller"
	"github.com/notifylab/fanout/pkg/delivery"
	"github.com/notifylab/fanout/pkg/disk"
	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/push"
	"github.com/notifylab/fanout/pkg/ranking"
	"github.com/notifylab/fanout/pkg/server"
	"github.com/notifylab/fanout/pkg/session"
	"github.com/notifylab/fanout/pkg/topic"
	"github.com/notifylab/fanout/util"
)

func newConnectedHandler(t *testing.T) (*controller.CommandHandler, *session.Registry) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.LogDir = t.TempDir()

	dm := disk.NewDiskManager(cfg)
	t.Cleanup(dm.CloseAllHandlers)
	tm := topic.NewTopicManager(cfg, dm.Provider())
	tm.CreateTopic("events", 1)

	registry := session.NewRegistry(100, time.Minute, time.Minute)
	t.Cleanup(registry.Close)
	pusher := push.NewQueue(100)
	tracker := delivery.NewTracker(registry, pusher, nil, 3, time.Millisecond, 10*time.Millisecond)
	store := ranking.NewStore(2, 10, 5, 1.0, nil)

	h := controller.NewCommandHandler(tm, tracker, store, registry,
		fanout.NewDirectory(), pusher, nil, cfg, "events", "fanout-engine")
	return h, registry
}

func roundTrip(t *testing.T, conn net.Conn, cmd string) string {
	t.Helper()
	if err := util.WriteWithLength(conn, []byte(cmd)); err != nil {
		t.Fatalf("write %q: %v", cmd, err)
	}
	resp, err := util.ReadWithLength(conn)
	if err != nil {
		t.Fatalf("read response for %q: %v", cmd, err)
	}
	return string(resp)
}

func TestHandleConnection_CommandRoundTrip(t *testing.T) {
	h, _ := newConnectedHandler(t)

	client, srv := net.Pipe()
	defer client.Close()
	go server.HandleConnection(srv, h, false)

	if resp := roundTrip(t, client, "HELP"); !strings.Contains(resp, "PUBLISH") {
		t.Fatalf("HELP response wrong: %s", resp)
	}
	if resp := roundTrip(t, client, "PUBLISH channel=c1 message=hi"); !strings.Contains(resp, "appended") {
		t.Fatalf("PUBLISH response wrong: %s", resp)
	}
	if resp := roundTrip(t, client, "EXIT"); resp != "BYE" {
		t.Fatalf("EXIT response wrong: %s", resp)
	}
}

func TestHandleConnection_SubscribeBindsSession(t *testing.T) {
	h, registry := newConnectedHandler(t)

	client, srv := net.Pipe()
	go server.HandleConnection(srv, h, false)

	resp := roundTrip(t, client, "SUBSCRIBE channel=c1 recipient=alice")
	if !strings.Contains(resp, "subscribed") {
		t.Fatalf("SUBSCRIBE failed: %s", resp)
	}
	if _, ok := registry.SessionFor("alice"); !ok {
		t.Fatal("subscription must register a live session")
	}

	// Dropping the connection drops the session.
	client.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := registry.SessionFor("alice"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session survived its connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
