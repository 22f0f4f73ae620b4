package ranking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/notifylab/fanout/util"
)

// Counter is the durable record backing one (key, member) score.
type Counter struct {
	Score float64 `json:"score"`
	Seq   uint64  `json:"seq"`
}

// Counters is the durable source of truth behind the ranked view. The store
// writes combined scores through on every update; Rebuild reads them back
// after a cache loss or on the reconciliation tick.
type Counters struct {
	mu     sync.Mutex
	counts map[string]map[string]Counter // key -> member -> counter
	maxSeq uint64
	path   string
	dirty  bool
}

type counterEntry struct {
	Key    string  `json:"key"`
	Member string  `json:"member"`
	Score  float64 `json:"score"`
	Seq    uint64  `json:"seq"`
}

// NewCounters loads the snapshot at path, if any. An empty path keeps
// counters in memory only.
func NewCounters(path string) (*Counters, error) {
	c := &Counters{
		counts: make(map[string]map[string]Counter),
		path:   path,
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read counter snapshot: %w", err)
	}

	var entries []counterEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse counter snapshot: %w", err)
	}
	for _, e := range entries {
		c.record(e.Key, e.Member, Counter{Score: e.Score, Seq: e.Seq})
	}
	util.Info("💾 loaded %d ranking counters from %s", len(entries), path)
	return c, nil
}

// Record stores the combined score for a (key, member).
func (c *Counters) Record(key, member string, score float64, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(key, member, Counter{Score: score, Seq: seq})
	c.dirty = true
}

// record keeps the freshest counter per (key, member). Writers race here
// after releasing their shard lock, so a stale write must never clobber a
// newer one; the per-entry sequence decides.
func (c *Counters) record(key, member string, ctr Counter) {
	if existing, ok := c.counts[key][member]; ok && existing.Seq >= ctr.Seq {
		return
	}
	if _, ok := c.counts[key]; !ok {
		c.counts[key] = make(map[string]Counter)
	}
	c.counts[key][member] = ctr
	if ctr.Seq > c.maxSeq {
		c.maxSeq = ctr.Seq
	}
}

// Snapshot returns a copy of every counter and the highest sequence seen.
func (c *Counters) Snapshot() (map[string]map[string]Counter, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]Counter, len(c.counts))
	for key, members := range c.counts {
		cp := make(map[string]Counter, len(members))
		for member, ctr := range members {
			cp[member] = ctr
		}
		out[key] = cp
	}
	return out, c.maxSeq
}

// Flush writes the snapshot atomically when anything changed.
func (c *Counters) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" || !c.dirty {
		return nil
	}

	entries := make([]counterEntry, 0)
	for key, members := range c.counts {
		for member, ctr := range members {
			entries = append(entries, counterEntry{
				Key: key, Member: member, Score: ctr.Score, Seq: ctr.Seq,
			})
		}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write counter snapshot: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace counter snapshot: %w", err)
	}

	c.dirty = false
	return nil
}
