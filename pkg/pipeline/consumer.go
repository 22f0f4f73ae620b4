package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

const summaryLimit = 120

// consumePartition is the single sequential worker for one owned partition.
// Events are applied strictly in offset order and the cursor only moves
// forward, duplicates included.
func (m *Member) consumePartition(ctx context.Context, partitionID, generation int) error {
	part := m.topic.Partition(partitionID)
	if part == nil {
		return fmt.Errorf("%w: partition %d missing from topic '%s'",
			types.ErrUnavailable, partitionID, m.topic.Name)
	}

	cursor, err := m.offsets.GetOffset(m.groupName, m.topic.Name, partitionID)
	if err != nil {
		cursor = 0
	}
	util.Info("🚀 worker started for partition %d at offset %d (generation %d)",
		partitionID, cursor, generation)

	pollTimeout := time.Duration(m.cfg.PollTimeoutMS) * time.Millisecond

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.coord.CheckOwnership(m.groupName, m.memberID, partitionID, generation); err != nil {
			metrics.OwnershipLost.Inc()
			return fmt.Errorf("worker for partition %d stopping: %w", partitionID, err)
		}

		events, err := part.WaitCommitted(cursor, m.cfg.ConsumeBatchSize, pollTimeout)
		if err != nil {
			if errors.Is(err, types.ErrUnavailable) {
				// Retention removed the segment the cursor points into.
				// The history is gone, so resume at the watermark.
				hwm := part.HighWatermark()
				util.Warn("⚠️ partition %d history truncated below offset %d, resuming at %d",
					partitionID, cursor, hwm)
				cursor = hwm
				continue
			}
			return fmt.Errorf("read failed on partition %d at offset %d: %w", partitionID, cursor, err)
		}
		if len(events) == 0 {
			continue
		}

		for i := range events {
			m.process(partitionID, &events[i])
		}
		cursor = events[len(events)-1].Offset + 1

		if err := m.offsets.CommitOffset(m.groupName, m.topic.Name, partitionID, cursor); err != nil {
			util.Error("❌ offset commit failed for partition %d: %v", partitionID, err)
		}
	}
}

// process applies one event. The dedup gate runs first so a replayed event
// never reaches a side effect twice, but its offset still advances the cursor.
func (m *Member) process(partitionID int, ev *types.Event) {
	if !m.filter.Admit(partitionID, ev.ID) {
		return
	}
	metrics.EventsProcessed.Inc()

	switch ev.Kind {
	case types.EventKindMessage:
		live, offline := m.resolver.ResolveRecipients(ev.Key)
		m.tracker.Track(ev.ID, ev.Payload, summarize(ev.Payload), live, offline)
	case types.EventKindRanking:
		m.applyRanking(ev)
	default:
		util.Warn("⚠️ skipping event '%s' with unknown kind %d on partition %d",
			ev.ID, ev.Kind, partitionID)
	}
}

// applyRanking credits the completed query to every prefix key it expands to.
func (m *Member) applyRanking(ev *types.Event) {
	query := string(ev.Payload)
	member := fanout.Normalize(query)
	if member == "" {
		return
	}
	for _, key := range m.resolver.ResolveKeys(query) {
		m.store.Apply(types.RankingUpdate{
			Key:       key,
			Member:    member,
			Increment: 1,
			EventID:   ev.ID,
		})
	}
}

func summarize(payload []byte) string {
	if len(payload) <= summaryLimit {
		return string(payload)
	}
	return string(payload[:summaryLimit])
}
