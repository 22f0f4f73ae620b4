package topic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notifylab/fanout/pkg/disk"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// Partition handles events for one shard of a topic. Appends are serialized
// by the partition mutex, which is what preserves per-partition total order.
type Partition struct {
	id           int
	topic        string
	newMessageCh chan struct{}
	LEO          atomic.Uint64
	hwm          atomic.Uint64
	mu           sync.Mutex
	dh           types.StorageHandler
	closed       bool
}

// NewPartition creates a partition instance over its storage handler.
func NewPartition(id int, topic string, dh types.StorageHandler) *Partition {
	p := &Partition{
		id:           id,
		topic:        topic,
		dh:           dh,
		newMessageCh: make(chan struct{}, 1),
	}

	latest := dh.GetLatestOffset()
	p.LEO.Store(latest)
	p.hwm.Store(latest)

	if handler, ok := dh.(*disk.DiskHandler); ok {
		p.hwm.Store(handler.GetFlushedOffset())
		handler.OnSync = func(flushedOffset uint64) {
			p.hwm.Store(flushedOffset)
			p.NotifyNewMessage()
		}
	}

	return p
}

func (p *Partition) ID() int { return p.id }

// Append persists an event into the partition queue.
func (p *Partition) Append(ev types.Event) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, fmt.Errorf("partition %d: %w", p.id, types.ErrUnavailable)
	}

	offset, err := p.dh.AppendEvent(p.topic, p.id, &ev)
	if err != nil {
		return 0, fmt.Errorf("append to partition %d: %w", p.id, err)
	}

	p.LEO.Store(offset + 1)
	p.NotifyNewMessage()
	return offset, nil
}

func (p *Partition) NotifyNewMessage() {
	select {
	case p.newMessageCh <- struct{}{}:
	default:
	}
}

// ReadCommitted returns durable events from offset, bounded by the high
// watermark.
func (p *Partition) ReadCommitted(offset uint64, max int) ([]types.Event, error) {
	hwm := p.hwm.Load()
	if offset >= hwm {
		return nil, nil
	}

	canRead := int(hwm - offset)
	if max > canRead {
		max = canRead
	}
	return p.dh.ReadEvents(offset, max)
}

// WaitCommitted blocks until durable events past offset exist or the timeout
// elapses, then reads. A nil, nil return means the long-poll timed out.
func (p *Partition) WaitCommitted(offset uint64, max int, timeout time.Duration) ([]types.Event, error) {
	events, err := p.ReadCommitted(offset, max)
	if err != nil || len(events) > 0 {
		return events, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-p.newMessageCh:
			events, err := p.ReadCommitted(offset, max)
			if err != nil || len(events) > 0 {
				return events, err
			}
		case <-timer.C:
			return nil, nil
		}
	}
}

// HighWatermark returns the first offset not yet durable.
func (p *Partition) HighWatermark() uint64 {
	return p.hwm.Load()
}

// NextOffset returns the next offset to be assigned (log end offset).
func (p *Partition) NextOffset() uint64 {
	return p.LEO.Load()
}

// Close shuts down the partition.
func (p *Partition) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	if p.dh != nil {
		p.dh.Flush()
	}
	util.Debug("partition %d of topic '%s' closed", p.id, p.topic)
}
