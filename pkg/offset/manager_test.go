package offset_test

import (
	"path/filepath"
	"testing"

	"github.com/notifylab/fanout/pkg/offset"
)

func TestCommitAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	om, err := offset.NewOffsetManager(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := om.GetOffset("g1", "events", 0); err == nil {
		t.Fatal("expected an error for a partition with no committed offset")
	}

	if err := om.CommitOffset("g1", "events", 0, 42); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := om.GetOffset("g1", "events", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 42 {
		t.Fatalf("got offset %d, want 42", got)
	}
}

func TestOffsetsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.json")
	om, err := offset.NewOffsetManager(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := om.CommitOffset("g1", "events", 0, 7); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := om.CommitOffset("g1", "events", 3, 100); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := om.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded, err := offset.NewOffsetManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	for partition, want := range map[int]uint64{0: 7, 3: 100} {
		got, err := reloaded.GetOffset("g1", "events", partition)
		if err != nil {
			t.Fatalf("get partition %d after reload: %v", partition, err)
		}
		if got != want {
			t.Fatalf("partition %d reloaded as %d, want %d", partition, got, want)
		}
	}
}
