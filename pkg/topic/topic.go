package topic

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/notifylab/fanout/pkg/types"
)

// Topic represents a logical event stream divided into partitions.
// Partition count is fixed at creation so that key routing stays stable.
type Topic struct {
	Name       string
	Partitions []*Partition
	mu         sync.RWMutex
}

// HandlerProvider defines an interface to provide storage handlers.
type HandlerProvider interface {
	GetHandler(topic string, partitionID int) (types.StorageHandler, error)
}

// NewTopic creates a new topic with partitions.
func NewTopic(name string, partitionCount int, hp HandlerProvider) (*Topic, error) {
	if partitionCount <= 0 {
		return nil, fmt.Errorf("%w: partition count %d", types.ErrInvalidInput, partitionCount)
	}

	partitions := make([]*Partition, partitionCount)
	for i := 0; i < partitionCount; i++ {
		dh, err := hp.GetHandler(name, i)
		if err != nil {
			return nil, fmt.Errorf("open handler for %s[%d]: %w", name, i, err)
		}
		partitions[i] = NewPartition(i, name, dh)
	}
	return &Topic{
		Name:       name,
		Partitions: partitions,
	}, nil
}

// PartitionFor returns the partition index owning a routing key. The mapping
// is a pure function of the key and partition count, so every event with the
// same key lands in the same partition.
func (t *Topic) PartitionFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(t.Partitions)))
}

// Append routes the event by its key and appends it.
func (t *Topic) Append(ev types.Event) (int, uint64, error) {
	idx := t.PartitionFor(ev.Key)
	offset, err := t.Partitions[idx].Append(ev)
	return idx, offset, err
}

// Partition returns a partition by index, or nil when out of range.
func (t *Topic) Partition(idx int) *Partition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx < 0 || idx >= len(t.Partitions) {
		return nil
	}
	return t.Partitions[idx]
}

// PartitionCount returns the fixed partition count.
func (t *Topic) PartitionCount() int {
	return len(t.Partitions)
}

// Close shuts down all partitions.
func (t *Topic) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.Partitions {
		p.Close()
	}
}
