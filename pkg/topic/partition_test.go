package topic_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/disk"
	"github.com/notifylab/fanout/pkg/topic"
	"github.com/notifylab/fanout/pkg/types"
)

func newTestTopic(t *testing.T, partitions int) *topic.Topic {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LogDir = t.TempDir()
	dm := disk.NewDiskManager(cfg)
	t.Cleanup(dm.CloseAllHandlers)

	tp, err := topic.NewTopic("events", partitions, dm.Provider())
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	return tp
}

func TestPartitionForIsStable(t *testing.T) {
	tp := newTestTopic(t, 4)

	for _, key := range []string{"channel-a", "channel-b", "query one", ""} {
		first := tp.PartitionFor(key)
		for i := 0; i < 10; i++ {
			if got := tp.PartitionFor(key); got != first {
				t.Fatalf("key %q mapped to %d then %d", key, first, got)
			}
		}
		if first < 0 || first >= tp.PartitionCount() {
			t.Fatalf("key %q mapped outside partition range: %d", key, first)
		}
	}
}

func TestSameKeySamePartitionInOrder(t *testing.T) {
	tp := newTestTopic(t, 4)

	const n = 25
	want := tp.PartitionFor("channel-a")
	for i := 0; i < n; i++ {
		ev := types.Event{
			ID:      fmt.Sprintf("evt-%d", i),
			Kind:    types.EventKindMessage,
			Key:     "channel-a",
			Payload: []byte("x"),
		}
		idx, offset, err := tp.Append(ev)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if idx != want {
			t.Fatalf("append %d routed to partition %d, want %d", i, idx, want)
		}
		if offset != uint64(i) {
			t.Fatalf("append %d got offset %d", i, offset)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for tp.Partition(want).HighWatermark() < n {
		if time.Now().After(deadline) {
			t.Fatalf("appends never became durable, hwm %d", tp.Partition(want).HighWatermark())
		}
		time.Sleep(time.Millisecond)
	}

	events, err := tp.Partition(want).ReadCommitted(0, n)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != n {
		t.Fatalf("read %d events, want %d", len(events), n)
	}
	for i, ev := range events {
		if ev.ID != fmt.Sprintf("evt-%d", i) {
			t.Fatalf("position %d holds %s, order broken", i, ev.ID)
		}
	}
}

func TestWaitCommittedTimesOut(t *testing.T) {
	tp := newTestTopic(t, 1)

	start := time.Now()
	events, err := tp.Partition(0).WaitCommitted(0, 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if events != nil {
		t.Fatalf("expected timeout with no events, got %d", len(events))
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("long poll returned before the timeout")
	}
}

func TestWaitCommittedWakesOnAppend(t *testing.T) {
	tp := newTestTopic(t, 1)

	done := make(chan []types.Event, 1)
	go func() {
		events, _ := tp.Partition(0).WaitCommitted(0, 10, 5*time.Second)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	ev := types.Event{ID: "evt-0", Kind: types.EventKindMessage, Key: "c", Payload: []byte("x")}
	if _, _, err := tp.Append(ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case events := <-done:
		if len(events) != 1 || events[0].ID != "evt-0" {
			t.Fatalf("woke with wrong events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("long poll never woke after a durable append")
	}
}
