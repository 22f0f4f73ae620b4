package ranking

import (
	"context"
	"time"

	"github.com/notifylab/fanout/util"
)

// Reconciler periodically rebuilds the ranked view from the durable
// counters and persists the counter snapshot. Suggestion freshness may lag
// under backpressure, but it never stays stale past one interval.
type Reconciler struct {
	store    *Store
	counters *Counters
	interval time.Duration
}

func NewReconciler(store *Store, counters *Counters, interval time.Duration) *Reconciler {
	return &Reconciler{store: store, counters: counters, interval: interval}
}

// Run blocks until ctx is canceled, reconciling on every tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Reconcile()
		case <-ctx.Done():
			// Final snapshot on shutdown.
			if err := r.counters.Flush(); err != nil {
				util.Warn("⚠️ final counter flush failed: %v", err)
			}
			return
		}
	}
}

// Reconcile rebuilds the view and flushes the counters once.
func (r *Reconciler) Reconcile() {
	r.store.Rebuild()
	if err := r.counters.Flush(); err != nil {
		util.Warn("⚠️ counter flush failed: %v", err)
	}
	util.Debug("ranked view reconciled from durable counters")
}
