package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/coordinator"
	"github.com/notifylab/fanout/pkg/dedup"
	"github.com/notifylab/fanout/pkg/delivery"
	"github.com/notifylab/fanout/pkg/disk"
	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/offset"
	"github.com/notifylab/fanout/pkg/pipeline"
	"github.com/notifylab/fanout/pkg/push"
	"github.com/notifylab/fanout/pkg/ranking"
	"github.com/notifylab/fanout/pkg/session"
	"github.com/notifylab/fanout/pkg/topic"
	"github.com/notifylab/fanout/pkg/types"
)

type engine struct {
	cfg     *config.Config
	tm      *topic.TopicManager
	cd      *coordinator.Coordinator
	om      *offset.OffsetManager
	store   *ranking.Store
	tracker *delivery.Tracker
	dir     *fanout.Directory
	pusher  *push.Queue
	member  *pipeline.Member
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.LogDir = t.TempDir()
	cfg.DefaultPartitions = 1
	cfg.PollTimeoutMS = 50
	cfg.OffsetsFlushMS = 50
	cfg.LingerMS = 5

	dm := disk.NewDiskManager(cfg)
	t.Cleanup(dm.CloseAllHandlers)

	tm := topic.NewTopicManager(cfg, dm.Provider())
	tp := tm.CreateTopic("events", 1)
	if tp == nil {
		t.Fatal("create topic failed")
	}

	om, err := offset.NewOffsetManager(filepath.Join(cfg.LogDir, "offsets.json"))
	if err != nil {
		t.Fatalf("offsets: %v", err)
	}

	cd := coordinator.NewCoordinator(cfg)
	registry := session.NewRegistry(100, time.Minute, time.Minute)
	t.Cleanup(registry.Close)
	dir := fanout.NewDirectory()
	resolver := fanout.NewResolver(registry, dir, 8)
	pusher := push.NewQueue(100)
	tracker := delivery.NewTracker(registry, pusher, nil, 3, time.Millisecond, 10*time.Millisecond)
	store := ranking.NewStore(2, 10, 5, 1.0, nil)
	filter := dedup.NewFilter(time.Minute, 1000)

	member := pipeline.NewMember(cfg, cd, tp, om, filter, resolver, tracker, store,
		"fanout-test", "member-1")

	return &engine{cfg: cfg, tm: tm, cd: cd, om: om, store: store,
		tracker: tracker, dir: dir, pusher: pusher, member: member}
}

func (e *engine) start(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.member.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("member exited with: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("member never shut down")
		}
	})
	return cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDuplicateEventsCountOnce(t *testing.T) {
	e := newEngine(t)
	e.start(t)

	// replayed intake: evt-1, evt-1, evt-2 for the same query
	for _, id := range []string{"evt-1", "evt-1", "evt-2"} {
		ev := types.Event{
			ID:      id,
			Kind:    types.EventKindRanking,
			Key:     "go build",
			Payload: []byte("go build"),
		}
		if _, _, err := e.tm.Append("events", ev); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	waitFor(t, "both unique events to apply", func() bool {
		score, ok := e.store.Score("g", "go build")
		return ok && score == 2
	})

	// give the duplicate time to surface if the gate leaked
	time.Sleep(100 * time.Millisecond)
	if score, _ := e.store.Score("g", "go build"); score != 2 {
		t.Fatalf("duplicate leaked into the ranking: score %f, want 2", score)
	}

	// every offset advances, duplicates included
	waitFor(t, "cursor to cover all three events", func() bool {
		off, err := e.om.GetOffset("fanout-test", "events", 0)
		return err == nil && off == 3
	})
}

func TestOfflineChannelTakesPushBranch(t *testing.T) {
	e := newEngine(t)
	e.start(t)

	e.dir.Subscribe("c1", "bob") // subscribed, but no live session

	ev := types.Event{
		ID:      "evt-1",
		Kind:    types.EventKindMessage,
		Key:     "c1",
		Payload: []byte("hello bob"),
	}
	if _, _, err := e.tm.Append("events", ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	waitFor(t, "the delivery record", func() bool {
		rec, ok := e.tracker.Get("evt-1", "bob")
		return ok && rec.State == types.DeliveryPending
	})
	if e.pusher.Len() != 1 {
		t.Fatalf("push handoff fired %d times, want exactly 1", e.pusher.Len())
	}

	// An explicit read ack is what finally moves the record.
	if err := e.tracker.Ack("evt-1", "bob", types.DeliveryRead); err != nil {
		t.Fatalf("ack: %v", err)
	}
	rec, _ := e.tracker.Get("evt-1", "bob")
	if rec.State != types.DeliveryRead {
		t.Fatalf("state %s, want read", rec.State)
	}
}

func TestMemberRejoinsAfterForcedRebalance(t *testing.T) {
	e := newEngine(t)
	e.start(t)

	first := types.Event{ID: "evt-1", Kind: types.EventKindRanking, Key: "go", Payload: []byte("go")}
	if _, _, err := e.tm.Append("events", first); err != nil {
		t.Fatalf("append: %v", err)
	}
	waitFor(t, "the first event to apply", func() bool {
		_, ok := e.store.Score("g", "go")
		return ok
	})

	// Invalidate the member's generation; its workers must notice and rejoin.
	e.cd.Rebalance("fanout-test")

	second := types.Event{ID: "evt-2", Kind: types.EventKindRanking, Key: "rust", Payload: []byte("rust")}
	if _, _, err := e.tm.Append("events", second); err != nil {
		t.Fatalf("append: %v", err)
	}
	waitFor(t, "processing to resume after the rebalance", func() bool {
		_, ok := e.store.Score("r", "rust")
		return ok
	})

	// The first event is not recounted across the rejoin.
	if score, _ := e.store.Score("g", "go"); score != 1 {
		t.Fatalf("event replayed across rebalance: score %f, want 1", score)
	}
}
