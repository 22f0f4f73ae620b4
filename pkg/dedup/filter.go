package dedup

import (
	"sync"
	"time"

	"github.com/notifylab/fanout/pkg/metrics"
)

// Filter suppresses already-processed event ids within a bounded,
// partition-scoped window. Records older than the horizon (or beyond the
// count bound) are evicted; duplicates arriving after eviction are
// reprocessed, the documented at-least-once leak.
type Filter struct {
	mu         sync.RWMutex
	partitions map[int]*window

	horizon time.Duration
	maxSize int
}

type window struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	queue []record
}

type record struct {
	id string
	at time.Time
}

// NewFilter builds a filter with a time horizon and per-partition size bound.
func NewFilter(horizon time.Duration, maxPerPartition int) *Filter {
	return &Filter{
		partitions: make(map[int]*window),
		horizon:    horizon,
		maxSize:    maxPerPartition,
	}
}

// Admit records the event id and reports whether the caller should process
// it. A false return means the id was seen within the window: skip the
// side effects but still advance the read cursor.
func (f *Filter) Admit(partition int, eventID string) bool {
	w := f.window(partition)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.evict(now, f.horizon, f.maxSize)

	if _, dup := w.seen[eventID]; dup {
		metrics.DuplicatesSkipped.Inc()
		return false
	}

	w.seen[eventID] = now
	w.queue = append(w.queue, record{id: eventID, at: now})
	return true
}

// Seen reports whether an id is currently within the window, without
// recording anything.
func (f *Filter) Seen(partition int, eventID string) bool {
	w := f.window(partition)
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[eventID]
	return ok
}

// Size returns the number of records held for a partition.
func (f *Filter) Size(partition int) int {
	w := f.window(partition)
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

func (f *Filter) window(partition int) *window {
	f.mu.RLock()
	w, ok := f.partitions[partition]
	f.mu.RUnlock()
	if ok {
		return w
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.partitions[partition]; ok {
		return w
	}
	w = &window{seen: make(map[string]time.Time)}
	f.partitions[partition] = w
	return w
}

// evict drops records past the time horizon, then oldest-first down to the
// size bound. Caller must hold w.mu.
func (w *window) evict(now time.Time, horizon time.Duration, maxSize int) {
	cutoff := now.Add(-horizon)
	for len(w.queue) > 0 {
		head := w.queue[0]
		if head.at.After(cutoff) && len(w.queue) < maxSize {
			break
		}
		// Only remove from the map if this queue entry is still current.
		if at, ok := w.seen[head.id]; ok && at.Equal(head.at) {
			delete(w.seen, head.id)
		}
		w.queue = w.queue[1:]
		metrics.DedupEvictions.Inc()
	}
}
