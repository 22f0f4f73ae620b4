package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/coordinator"
	"github.com/notifylab/fanout/pkg/dedup"
	"github.com/notifylab/fanout/pkg/delivery"
	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/offset"
	"github.com/notifylab/fanout/pkg/ranking"
	"github.com/notifylab/fanout/pkg/topic"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// Member is one consumer-group member of the fanout pipeline. It joins the
// group, runs one sequential worker per owned partition, and rejoins after
// any rebalance that invalidates its generation.
type Member struct {
	cfg       *config.Config
	coord     *coordinator.Coordinator
	topic     *topic.Topic
	offsets   *offset.OffsetManager
	filter    *dedup.Filter
	resolver  *fanout.Resolver
	tracker   *delivery.Tracker
	store     *ranking.Store
	groupName string
	memberID  string
}

func NewMember(cfg *config.Config, coord *coordinator.Coordinator, t *topic.Topic,
	offsets *offset.OffsetManager, filter *dedup.Filter, resolver *fanout.Resolver,
	tracker *delivery.Tracker, store *ranking.Store, groupName, memberID string) *Member {
	return &Member{
		cfg:       cfg,
		coord:     coord,
		topic:     t,
		offsets:   offsets,
		filter:    filter,
		resolver:  resolver,
		tracker:   tracker,
		store:     store,
		groupName: groupName,
		memberID:  memberID,
	}
}

// Run joins the group and consumes until the context is cancelled. A lost
// lease or a generation bump tears down the current workers and rejoins,
// so ownership is never exercised across a rebalance.
func (m *Member) Run(ctx context.Context) error {
	if err := m.coord.RegisterGroup(m.topic.Name, m.groupName, m.topic.PartitionCount()); err != nil {
		return err
	}
	defer func() {
		if err := m.coord.LeaveGroup(m.groupName, m.memberID); err != nil {
			util.Warn("⚠️ member '%s' failed to leave group '%s': %v", m.memberID, m.groupName, err)
		}
		if err := m.offsets.Flush(); err != nil {
			util.Error("❌ failed to flush offsets on shutdown: %v", err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		assignments, generation, err := m.coord.JoinGroup(m.groupName, m.memberID)
		if err != nil {
			return fmt.Errorf("failed to join group '%s': %w", m.groupName, err)
		}
		util.Info("🚀 member '%s' joined group '%s' generation %d, partitions %v",
			m.memberID, m.groupName, generation, assignments)

		err = m.runGeneration(ctx, assignments, generation)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, types.ErrOwnershipLost) {
			util.Warn("⚠️ member '%s' lost ownership in generation %d, rejoining", m.memberID, generation)
			continue
		}
		return err
	}
}

// runGeneration runs the partition workers for one assignment. It returns
// when the context is cancelled or any worker hits an error.
func (m *Member) runGeneration(ctx context.Context, assignments []int, generation int) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, partitionID := range assignments {
		pid := partitionID
		g.Go(func() error {
			return m.consumePartition(gctx, pid, generation)
		})
	}
	g.Go(func() error {
		return m.renewLoop(gctx, generation)
	})
	g.Go(func() error {
		return m.flushLoop(gctx)
	})

	return g.Wait()
}

// renewLoop keeps the member's lease alive. A renewal failure or a
// generation bump by the coordinator ends the current generation.
func (m *Member) renewLoop(ctx context.Context, generation int) error {
	interval := time.Duration(m.cfg.LeaseDurationMS) * time.Millisecond / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, current, err := m.coord.RenewLease(m.groupName, m.memberID)
			if err != nil {
				return fmt.Errorf("lease renewal failed for member '%s': %w", m.memberID, err)
			}
			if current != generation {
				return fmt.Errorf("group '%s' moved to generation %d: %w",
					m.groupName, current, types.ErrOwnershipLost)
			}
		}
	}
}

func (m *Member) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(m.cfg.OffsetsFlushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.offsets.Flush(); err != nil {
				util.Error("❌ periodic offset flush failed: %v", err)
			}
		}
	}
}
