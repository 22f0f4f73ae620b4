package ranking

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/pkg/types"
)

// Store is the bounded top-K ranked view. Keys are sharded by hash so
// updates to different keys proceed fully in parallel; updates to the same
// key serialize on the shard lock. There is no global lock.
//
// Apply is not idempotent by itself: the dedup filter must gate every call,
// or duplicate events double-count.
type Store struct {
	shards []*shard
	mod    uint64

	kMax  int
	slack int
	decay float64

	counters *Counters
	seq      atomic.Uint64 // recency tiebreak, higher = more recent
}

type shard struct {
	mu   sync.Mutex
	keys map[string]*keySet
}

type keySet struct {
	members map[string]*types.RankedEntry
	tree    *btree.BTreeG[*types.RankedEntry]
}

// entryLess orders entries best-first: descending score, then recency, then
// member for full determinism.
func entryLess(a, b *types.RankedEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.Member < b.Member
}

// NewStore builds a store with 2<<exponent shards. counters may be nil for
// a cache-only store; when set, every update writes through so the view can
// be rebuilt after a loss.
func NewStore(exponent, kMax, slack int, decay float64, counters *Counters) *Store {
	count := 2 << exponent
	shards := make([]*shard, count)
	for i := range shards {
		shards[i] = &shard{keys: make(map[string]*keySet)}
	}
	return &Store{
		shards:   shards,
		mod:      uint64(count - 1),
		kMax:     kMax,
		slack:    slack,
		decay:    decay,
		counters: counters,
	}
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)&s.mod]
}

// Apply combines one update into the ranked view and the durable counters.
func (s *Store) Apply(u types.RankingUpdate) {
	seq := s.seq.Add(1)

	sh := s.shardFor(u.Key)
	sh.mu.Lock()
	score := s.applyLocked(sh, u.Key, u.Member, u.Increment, seq)
	sh.mu.Unlock()

	if s.counters != nil {
		s.counters.Record(u.Key, u.Member, score, seq)
	}
	metrics.RankingUpdates.Inc()
}

// applyLocked performs the combine and amortized trim. Caller holds sh.mu.
func (s *Store) applyLocked(sh *shard, key, member string, increment float64, seq uint64) float64 {
	ks, ok := sh.keys[key]
	if !ok {
		ks = &keySet{
			members: make(map[string]*types.RankedEntry),
			tree:    btree.NewG(8, entryLess),
		}
		sh.keys[key] = ks
	}

	entry, exists := ks.members[member]
	if exists {
		ks.tree.Delete(entry)
		entry.Score = entry.Score*s.decay + increment
		entry.Seq = seq
	} else {
		entry = &types.RankedEntry{Key: key, Member: member, Score: increment, Seq: seq}
		ks.members[member] = entry
	}
	ks.tree.ReplaceOrInsert(entry)

	// Amortized trim: let the set overshoot by the slack margin, then cut
	// back to exactly kMax in one pass.
	if ks.tree.Len() > s.kMax+s.slack {
		s.trimLocked(ks)
	}
	return entry.Score
}

func (s *Store) trimLocked(ks *keySet) {
	victims := make([]*types.RankedEntry, 0, ks.tree.Len()-s.kMax)
	rank := 0
	ks.tree.Ascend(func(e *types.RankedEntry) bool {
		rank++
		if rank > s.kMax {
			victims = append(victims, e)
		}
		return true
	})
	for _, e := range victims {
		ks.tree.Delete(e)
		delete(ks.members, e.Member)
		metrics.RankingEvictions.Inc()
	}
}

// TopK returns up to min(limit, kMax) entries for a key, best first.
func (s *Store) TopK(key string, limit int) []types.RankedEntry {
	metrics.TopKQueries.Inc()

	if limit <= 0 || limit > s.kMax {
		limit = s.kMax
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ks, ok := sh.keys[key]
	if !ok {
		return nil
	}

	out := make([]types.RankedEntry, 0, limit)
	ks.tree.Ascend(func(e *types.RankedEntry) bool {
		out = append(out, *e)
		return len(out) < limit
	})
	return out
}

// Score returns a member's current score under a key.
func (s *Store) Score(key, member string) (float64, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ks, ok := sh.keys[key]
	if !ok {
		return 0, false
	}
	entry, ok := ks.members[member]
	if !ok {
		return 0, false
	}
	return entry.Score, true
}

// Rebuild discards the in-memory view and reloads it from the durable
// counters, trimming each key to kMax. Cache drift self-heals here.
func (s *Store) Rebuild() {
	if s.counters == nil {
		return
	}

	snapshot, maxSeq := s.counters.Snapshot()

	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.keys = make(map[string]*keySet)
		sh.mu.Unlock()
	}

	// Keep the recency sequence ahead of everything reloaded.
	for {
		cur := s.seq.Load()
		if cur >= maxSeq || s.seq.CompareAndSwap(cur, maxSeq) {
			break
		}
	}

	for key, members := range snapshot {
		sh := s.shardFor(key)
		sh.mu.Lock()
		ks := &keySet{
			members: make(map[string]*types.RankedEntry),
			tree:    btree.NewG(8, entryLess),
		}
		sh.keys[key] = ks
		for member, c := range members {
			entry := &types.RankedEntry{Key: key, Member: member, Score: c.Score, Seq: c.Seq}
			ks.members[member] = entry
			ks.tree.ReplaceOrInsert(entry)
		}
		if ks.tree.Len() > s.kMax {
			s.trimLocked(ks)
		}
		sh.mu.Unlock()
	}
	metrics.ReconcileRuns.Inc()
}
