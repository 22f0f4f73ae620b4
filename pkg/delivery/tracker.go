package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/pkg/push"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// Sender attempts to hand a payload to a recipient's live session.
type Sender interface {
	Deliver(recipientID string, payload []byte) error
}

const trackerShards = 32

// tracked is a live delivery record plus what the retry loop needs to
// re-attempt it.
type tracked struct {
	rec     types.DeliveryRecord
	payload []byte
	summary string
	pushed  bool
}

type shard struct {
	mu      sync.Mutex
	records map[string]*tracked
}

// Tracker owns the per-recipient delivery state machine. A record only
// moves forward: Pending to Delivered to Read, or Pending to Expired once
// the retry ceiling is hit. Records for the same recipient and event are
// serialized by their shard lock, records on different shards advance in
// parallel.
type Tracker struct {
	shards [trackerShards]*shard

	sender  Sender
	pusher  push.Service
	archive *Archive

	maxAttempts int
	baseBackoff time.Duration
	retryTick   time.Duration
}

func NewTracker(sender Sender, pusher push.Service, archive *Archive, maxAttempts int, baseBackoff, retryTick time.Duration) *Tracker {
	t := &Tracker{
		sender:      sender,
		pusher:      pusher,
		archive:     archive,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		retryTick:   retryTick,
	}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[string]*tracked)}
	}
	return t
}

func recordKey(eventID, recipientID string) string {
	return eventID + "|" + recipientID
}

func (t *Tracker) shardFor(key string) *shard {
	return t.shards[xxhash.Sum64String(key)%trackerShards]
}

// Track registers delivery records for one event. Live recipients get an
// immediate delivery attempt, offline recipients get a Pending record and
// exactly one push handoff.
func (t *Tracker) Track(eventID string, payload []byte, summary string, live []types.SessionLocation, offline []string) {
	for _, loc := range live {
		t.trackOne(eventID, loc.RecipientID, payload, summary, false)
	}
	for _, recipientID := range offline {
		t.trackOne(eventID, recipientID, payload, summary, true)
	}
}

func (t *Tracker) trackOne(eventID, recipientID string, payload []byte, summary string, offline bool) {
	key := recordKey(eventID, recipientID)
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[key]; exists {
		// Replayed event after a crash or rebalance. The record already
		// carries whatever progress the recipient made.
		return
	}

	tr := &tracked{
		rec: types.DeliveryRecord{
			EventID:     eventID,
			RecipientID: recipientID,
			State:       types.DeliveryPending,
		},
		payload: payload,
		summary: summary,
	}
	s.records[key] = tr
	metrics.PendingDeliveries.Inc()

	if offline {
		t.handoffLocked(tr)
		return
	}
	t.attemptLocked(tr)
}

// attemptLocked tries one delivery. Caller holds the shard lock.
func (t *Tracker) attemptLocked(tr *tracked) {
	tr.rec.AttemptCount++
	tr.rec.LastAttemptAt = time.Now()
	metrics.DeliveryAttempts.Inc()

	if err := t.sender.Deliver(tr.rec.RecipientID, tr.payload); err != nil {
		util.Debug("delivery attempt %d failed for event '%s' recipient '%s': %v",
			tr.rec.AttemptCount, tr.rec.EventID, tr.rec.RecipientID, err)
		if tr.rec.AttemptCount >= t.maxAttempts {
			t.expireLocked(tr)
		}
		return
	}
	t.advanceLocked(tr, types.DeliveryDelivered)
}

// expireLocked gives up on a Pending record. The push handoff fires at most
// once per record, so an offline record already handed off is not pushed again.
func (t *Tracker) expireLocked(tr *tracked) {
	if !t.handoffLocked(tr) {
		util.Warn("⚠️ delivery expired for event '%s' recipient '%s' after %d attempts",
			tr.rec.EventID, tr.rec.RecipientID, tr.rec.AttemptCount)
	}
	t.advanceLocked(tr, types.DeliveryExpired)
}

func (t *Tracker) handoffLocked(tr *tracked) bool {
	if tr.pushed {
		return false
	}
	tr.pushed = true
	t.pusher.Enqueue(push.Notification{
		RecipientID: tr.rec.RecipientID,
		EventID:     tr.rec.EventID,
		Summary:     tr.summary,
	})
	return true
}

// advanceLocked applies a forward-only transition and reports whether the
// record moved. Anything that would move the record backward, or out of a
// terminal state, is a no-op.
func (t *Tracker) advanceLocked(tr *tracked, to types.DeliveryState) bool {
	from := tr.rec.State
	allowed := false
	switch to {
	case types.DeliveryDelivered:
		allowed = from == types.DeliveryPending
	case types.DeliveryRead:
		allowed = from == types.DeliveryPending || from == types.DeliveryDelivered
	case types.DeliveryExpired:
		allowed = from == types.DeliveryPending
	}
	if !allowed {
		return false
	}
	tr.rec.State = to

	switch to {
	case types.DeliveryDelivered:
		metrics.DeliveriesConfirmed.Inc()
	case types.DeliveryExpired:
		metrics.DeliveriesExpired.Inc()
	}

	if to.Terminal() {
		tr.payload = nil
		metrics.PendingDeliveries.Dec()
		if t.archive != nil {
			if err := t.archive.Append(tr.rec); err != nil {
				util.Error("❌ failed to archive delivery record for event '%s': %v",
					tr.rec.EventID, err)
			}
		}
	}
	return true
}

// Ack applies a recipient acknowledgment. A read ack is accepted even when
// no delivered confirmation was ever recorded.
func (t *Tracker) Ack(eventID, recipientID string, state types.DeliveryState) error {
	if state != types.DeliveryDelivered && state != types.DeliveryRead {
		return fmt.Errorf("%w: ack state must be delivered or read, got '%s'",
			types.ErrInvalidInput, state)
	}

	key := recordKey(eventID, recipientID)
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.records[key]
	if !ok {
		return fmt.Errorf("%w: no delivery record for event '%s' recipient '%s'",
			types.ErrUnavailable, eventID, recipientID)
	}

	metrics.AcksReceived.Inc()
	if !t.advanceLocked(tr, state) {
		return fmt.Errorf("%w: record for event '%s' recipient '%s' is already %s",
			types.ErrDuplicate, eventID, recipientID, tr.rec.State)
	}
	return nil
}

// Get returns a copy of one delivery record.
func (t *Tracker) Get(eventID, recipientID string) (types.DeliveryRecord, bool) {
	key := recordKey(eventID, recipientID)
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.records[key]
	if !ok {
		return types.DeliveryRecord{}, false
	}
	return tr.rec, true
}

// Pending counts the records that have not reached a terminal state.
func (t *Tracker) Pending() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for _, tr := range s.records {
			if !tr.rec.State.Terminal() {
				total++
			}
		}
		s.mu.Unlock()
	}
	return total
}

// Run drives the retry loop until the context is cancelled. Each tick
// re-attempts every Pending record whose backoff window has elapsed.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.retryTick)
	defer ticker.Stop()

	util.Info("🚀 delivery retry loop started (tick=%v, maxAttempts=%d)", t.retryTick, t.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			util.Info("✅ delivery retry loop stopped")
			return
		case <-ticker.C:
			t.retryDue(time.Now())
		}
	}
}

func (t *Tracker) retryDue(now time.Time) {
	for _, s := range t.shards {
		s.mu.Lock()
		for _, tr := range s.records {
			if tr.rec.State != types.DeliveryPending {
				continue
			}
			if now.Before(tr.rec.LastAttemptAt.Add(t.backoff(tr.rec.AttemptCount))) {
				continue
			}
			t.attemptLocked(tr)
		}
		s.mu.Unlock()
	}
}

// backoff doubles per attempt, starting from the configured base.
func (t *Tracker) backoff(attempts int) time.Duration {
	if attempts <= 1 {
		return t.baseBackoff
	}
	d := t.baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= time.Minute {
			return time.Minute
		}
	}
	return d
}
