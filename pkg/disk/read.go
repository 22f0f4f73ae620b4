package disk

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
	"golang.org/x/exp/mmap"
)

// ReadEvents returns up to max durable events starting at offset. The read
// is restartable: any previously returned offset is a valid starting point
// as long as retention has not purged its segment.
func (d *DiskHandler) ReadEvents(offset uint64, max int) ([]types.Event, error) {
	if max <= 0 {
		return nil, nil
	}
	flushed := d.flushedOffset.Load()
	if offset >= flushed {
		return nil, nil
	}

	atomic.AddInt32(&d.activeReaders, 1)
	defer atomic.AddInt32(&d.activeReaders, -1)

	events := make([]types.Event, 0, max)
	cur := offset
	for len(events) < max && cur < flushed {
		read, next, err := d.readSegmentFrom(cur, flushed, max-len(events))
		if err != nil {
			if len(events) > 0 {
				// Return what we have; the caller resumes from its cursor.
				util.Warn("⚠️ partial read at offset %d: %v", cur, err)
				return events, nil
			}
			return nil, err
		}
		if len(read) == 0 {
			break
		}
		events = append(events, read...)
		cur = next
	}
	return events, nil
}

// readSegmentFrom reads events within a single segment, stopping at the
// segment end, the durable watermark, or max, whichever comes first.
func (d *DiskHandler) readSegmentFrom(offset, flushed uint64, max int) ([]types.Event, uint64, error) {
	d.mu.Lock()
	seg, err := d.segmentForOffset(offset)
	d.mu.Unlock()
	if err != nil {
		return nil, offset, err
	}

	pos, err := d.lookupPosition(seg, offset)
	if err != nil {
		return nil, offset, err
	}

	reader, err := mmap.Open(d.GetSegmentPath(seg.num))
	if err != nil {
		return nil, offset, fmt.Errorf("mmap open segment: %w", err)
	}
	defer reader.Close()

	events := make([]types.Event, 0, max)
	cur := offset
	p := int64(pos)
	for len(events) < max && cur < flushed {
		if p+4 > int64(reader.Len()) {
			break
		}

		var lenBuf [4]byte
		if _, err := reader.ReadAt(lenBuf[:], p); err != nil {
			return events, cur, fmt.Errorf("read frame length: %w", err)
		}
		frameLen := int64(binary.BigEndian.Uint32(lenBuf[:]))
		p += 4

		if p+frameLen > int64(reader.Len()) {
			break
		}
		frame := make([]byte, frameLen)
		if _, err := reader.ReadAt(frame, p); err != nil {
			return events, cur, fmt.Errorf("read frame: %w", err)
		}
		p += frameLen

		ev, err := util.DecodeEvent(frame)
		if err != nil {
			return events, cur, fmt.Errorf("decode event at offset %d: %w", cur, err)
		}
		ev.Offset = cur
		events = append(events, ev)
		cur++
	}
	return events, cur, nil
}
