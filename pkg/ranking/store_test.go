package ranking_test

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/notifylab/fanout/pkg/ranking"
	"github.com/notifylab/fanout/pkg/types"
)

func apply(s *ranking.Store, key, member string, n int) {
	for i := 0; i < n; i++ {
		s.Apply(types.RankingUpdate{Key: key, Member: member, Increment: 1})
	}
}

func TestTopKOrdersByScore(t *testing.T) {
	s := ranking.NewStore(2, 10, 5, 1.0, nil)

	apply(s, "go", "go build", 3)
	apply(s, "go", "go test", 5)
	apply(s, "go", "go vet", 1)

	got := s.TopK("go", 10)
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	wantOrder := []string{"go test", "go build", "go vet"}
	for i, w := range wantOrder {
		if got[i].Member != w {
			t.Fatalf("rank %d is %q, want %q", i+1, got[i].Member, w)
		}
	}
	if got[0].Score != 5 {
		t.Fatalf("top score %f, want 5", got[0].Score)
	}
}

func TestTopKBreaksTiesByRecency(t *testing.T) {
	s := ranking.NewStore(2, 10, 5, 1.0, nil)

	apply(s, "go", "go build", 2)
	apply(s, "go", "go test", 2) // same score, updated later

	got := s.TopK("go", 2)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Member != "go test" {
		t.Fatalf("most recently updated member must rank first on a tie, got %q", got[0].Member)
	}
}

func TestTopKNeverExceedsBound(t *testing.T) {
	const kMax = 10
	s := ranking.NewStore(2, kMax, 5, 1.0, nil)

	for i := 0; i < kMax*10; i++ {
		apply(s, "q", fmt.Sprintf("query-%03d", i), i+1)
	}

	got := s.TopK("q", kMax*10)
	if len(got) > kMax {
		t.Fatalf("TopK returned %d entries, bound is %d", len(got), kMax)
	}
	// The highest-scored members must have survived the trims.
	if got[0].Member != fmt.Sprintf("query-%03d", kMax*10-1) {
		t.Fatalf("best member evicted: top is %q", got[0].Member)
	}
}

func TestDecayCombine(t *testing.T) {
	s := ranking.NewStore(2, 10, 5, 0.5, nil)

	apply(s, "go", "go build", 1) // score 1
	apply(s, "go", "go build", 1) // 1*0.5 + 1 = 1.5
	apply(s, "go", "go build", 1) // 1.5*0.5 + 1 = 1.75

	score, ok := s.Score("go", "go build")
	if !ok {
		t.Fatal("member missing")
	}
	if math.Abs(score-1.75) > 1e-9 {
		t.Fatalf("score %f, want 1.75", score)
	}
}

func TestTopKUnknownKey(t *testing.T) {
	s := ranking.NewStore(2, 10, 5, 1.0, nil)
	if got := s.TopK("never seen", 5); len(got) != 0 {
		t.Fatalf("unknown key must return empty, got %v", got)
	}
}

func TestRebuildRestoresView(t *testing.T) {
	dir := t.TempDir()
	counters, err := ranking.NewCounters(filepath.Join(dir, "counters.json"))
	if err != nil {
		t.Fatalf("counters: %v", err)
	}

	s := ranking.NewStore(2, 10, 5, 1.0, counters)
	apply(s, "go", "go build", 3)
	apply(s, "go", "go test", 5)
	if err := counters.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// Fresh process: reload counters, rebuild the in-memory view.
	reloaded, err := ranking.NewCounters(filepath.Join(dir, "counters.json"))
	if err != nil {
		t.Fatalf("reload counters: %v", err)
	}
	fresh := ranking.NewStore(2, 10, 5, 1.0, reloaded)
	fresh.Rebuild()

	got := fresh.TopK("go", 10)
	if len(got) != 2 {
		t.Fatalf("rebuilt view has %d entries, want 2", len(got))
	}
	if got[0].Member != "go test" || got[0].Score != 5 {
		t.Fatalf("rebuilt top entry wrong: %+v", got[0])
	}

	// New updates keep combining on top of the rebuilt state.
	apply(fresh, "go", "go build", 3)
	score, _ := fresh.Score("go", "go build")
	if score != 6 {
		t.Fatalf("score after rebuild and update: %f, want 6", score)
	}
}

func TestStaleCounterWriteDoesNotRegress(t *testing.T) {
	counters, err := ranking.NewCounters("")
	if err != nil {
		t.Fatalf("counters: %v", err)
	}

	// Two writers finishing out of order: the higher-sequence score lands
	// first, then a straggler tries to persist an older one.
	counters.Record("go", "go test", 5, 2)
	counters.Record("go", "go test", 1, 1)

	snap, maxSeq := counters.Snapshot()
	got := snap["go"]["go test"]
	if got.Score != 5 || got.Seq != 2 {
		t.Fatalf("stale write clobbered counter: %+v", got)
	}
	if maxSeq != 2 {
		t.Fatalf("maxSeq %d, want 2", maxSeq)
	}

	// A rebuild in that window must serve the newer score, not the stale one.
	s := ranking.NewStore(2, 10, 5, 1.0, counters)
	s.Rebuild()
	score, ok := s.Score("go", "go test")
	if !ok || score != 5 {
		t.Fatalf("rebuilt score %f, want 5", score)
	}
}
