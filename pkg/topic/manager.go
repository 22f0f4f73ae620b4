package topic

import (
	"fmt"
	"sync"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// TopicManager owns every topic and is the single write path into the log.
type TopicManager struct {
	topics map[string]*Topic
	hp     HandlerProvider
	mu     sync.RWMutex
	cfg    *config.Config

	producedSeq uint64 // monotonic logical timestamp, guarded by seqMu
	seqMu       sync.Mutex
}

func NewTopicManager(cfg *config.Config, hp HandlerProvider) *TopicManager {
	return &TopicManager{
		topics: make(map[string]*Topic),
		hp:     hp,
		cfg:    cfg,
	}
}

func (tm *TopicManager) CreateTopic(name string, partitionCount int) *Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if existing, ok := tm.topics[name]; ok {
		if partitionCount != len(existing.Partitions) {
			util.Warn("⚠️ topic '%s' already exists with %d partitions; count is fixed at creation",
				name, len(existing.Partitions))
		}
		return existing
	}

	t, err := NewTopic(name, partitionCount, tm.hp)
	if err != nil {
		util.Error("❌ failed to create topic '%s': %v", name, err)
		return nil
	}
	tm.topics[name] = t
	util.Info("✅ topic '%s' created with %d partitions", name, partitionCount)
	return t
}

func (tm *TopicManager) GetTopic(name string) *Topic {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.topics[name]
}

// Append validates the event, stamps its logical timestamp, and appends it to
// the topic. The only guarantee a producer gets back is "accepted into the log".
func (tm *TopicManager) Append(topicName string, ev types.Event) (int, uint64, error) {
	start := time.Now()

	if err := tm.validate(ev); err != nil {
		return 0, 0, err
	}

	t := tm.GetTopic(topicName)
	if t == nil {
		if !tm.cfg.AutoCreateTopics {
			return 0, 0, fmt.Errorf("topic '%s' does not exist: %w", topicName, types.ErrUnavailable)
		}
		t = tm.CreateTopic(topicName, tm.cfg.DefaultPartitions)
		if t == nil {
			return 0, 0, fmt.Errorf("failed to auto-create topic '%s': %w", topicName, types.ErrUnavailable)
		}
	}

	ev.ProducedAt = tm.nextProducedAt()

	partition, offset, err := t.Append(ev)
	if err != nil {
		return 0, 0, err
	}

	metrics.EventsAppended.Inc()
	metrics.AppendLatency.Observe(time.Since(start).Seconds())
	return partition, offset, nil
}

func (tm *TopicManager) validate(ev types.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: missing event id", types.ErrInvalidInput)
	}
	if ev.Key == "" {
		return fmt.Errorf("%w: missing partition key", types.ErrInvalidInput)
	}
	if len(ev.Payload) > tm.cfg.MaxPayloadBytes {
		return fmt.Errorf("%w: payload %d bytes exceeds bound %d",
			types.ErrInvalidInput, len(ev.Payload), tm.cfg.MaxPayloadBytes)
	}
	return nil
}

func (tm *TopicManager) nextProducedAt() uint64 {
	tm.seqMu.Lock()
	defer tm.seqMu.Unlock()
	tm.producedSeq++
	return tm.producedSeq
}

func (tm *TopicManager) DeleteTopic(name string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t, ok := tm.topics[name]; ok {
		t.Close()
		delete(tm.topics, name)
		return true
	}
	return false
}

func (tm *TopicManager) ListTopics() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := make([]string, 0, len(tm.topics))
	for name := range tm.topics {
		names = append(names, name)
	}
	return names
}

func (tm *TopicManager) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for _, t := range tm.topics {
		t.Close()
	}
}
