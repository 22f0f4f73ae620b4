package disk

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/notifylab/fanout/pkg/types"
	"golang.org/x/exp/mmap"
)

func (d *DiskHandler) openIndexFile() error {
	f, err := os.OpenFile(d.GetIndexPath(d.CurrentSegment), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	d.indexFile = f
	d.indexWriter = bufio.NewWriter(f)
	return nil
}

// readFirstIndexOffset returns the offset of the first entry in a segment's
// index file, used to rebuild segment bases after a restart.
func (d *DiskHandler) readFirstIndexOffset(segment int) (uint64, bool) {
	f, err := os.Open(d.GetIndexPath(segment))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var buf [types.IndexEntrySize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return 0, false
	}
	return decodeIndexEntry(buf).Offset, true
}

// segmentForOffset finds the segment holding the given offset.
// Caller must hold d.mu.
func (d *DiskHandler) segmentForOffset(offset uint64) (segmentMeta, error) {
	if len(d.segments) == 0 {
		return segmentMeta{}, fmt.Errorf("no segments for %s", d.BaseName)
	}
	if offset < d.segments[0].base {
		return segmentMeta{}, fmt.Errorf("%w: offset %d below retention floor %d",
			types.ErrUnavailable, offset, d.segments[0].base)
	}

	for i := len(d.segments) - 1; i >= 0; i-- {
		if offset >= d.segments[i].base {
			return d.segments[i], nil
		}
	}
	return segmentMeta{}, fmt.Errorf("offset %d not found in %s", offset, d.BaseName)
}

// lookupPosition resolves an offset to its byte position within a segment
// via the dense index file.
func (d *DiskHandler) lookupPosition(seg segmentMeta, offset uint64) (uint64, error) {
	reader, err := mmap.Open(d.GetIndexPath(seg.num))
	if err != nil {
		return 0, fmt.Errorf("mmap open index: %w", err)
	}
	defer reader.Close()

	entry := int64(offset-seg.base) * types.IndexEntrySize
	if entry+types.IndexEntrySize > int64(reader.Len()) {
		return 0, fmt.Errorf("offset %d beyond index of segment %d", offset, seg.num)
	}

	var buf [types.IndexEntrySize]byte
	if _, err := reader.ReadAt(buf[:], entry); err != nil {
		return 0, fmt.Errorf("read index entry: %w", err)
	}

	ie := decodeIndexEntry(buf)
	if ie.Offset != offset {
		return 0, fmt.Errorf("index corruption in segment %d: want offset %d, found %d",
			seg.num, offset, ie.Offset)
	}
	return ie.Position, nil
}

func encodeIndexEntry(ie types.IndexEntry) [types.IndexEntrySize]byte {
	var buf [types.IndexEntrySize]byte
	binary.BigEndian.PutUint64(buf[0:8], ie.Offset)
	binary.BigEndian.PutUint64(buf[8:16], ie.Position)
	return buf
}

func decodeIndexEntry(buf [types.IndexEntrySize]byte) types.IndexEntry {
	return types.IndexEntry{
		Offset:   binary.BigEndian.Uint64(buf[0:8]),
		Position: binary.BigEndian.Uint64(buf[8:16]),
	}
}
