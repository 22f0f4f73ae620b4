package disk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// DiskHandler persists one partition's events as length-prefixed frames in
// rolling segment files, with a dense offset index per segment.
type DiskHandler struct {
	BaseName       string
	SegmentSize    int
	CurrentSegment int

	currentPos int           // byte position in the current segment
	segments   []segmentMeta // ordered by base offset

	nextOffset    atomic.Uint64 // next offset to assign
	flushedOffset atomic.Uint64 // first offset not yet durable

	// OnSync is invoked after a batch reaches disk, with the first
	// offset that is not yet durable (the new high watermark).
	OnSync func(flushedOffset uint64)

	writeCh      chan pendingWrite
	done         chan struct{}
	batchSize    int
	linger       time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex // metadata (offsets, segment numbers, file handles)
	ioMu sync.Mutex // bufio writers, flush

	file   *os.File
	writer *bufio.Writer

	indexFile   *os.File
	indexWriter *bufio.Writer

	activeReaders int32

	closeOnce sync.Once
	shutdown  sync.WaitGroup
}

type pendingWrite struct {
	offset uint64
	frame  []byte
}

// segmentMeta records the first offset stored in a segment file.
type segmentMeta struct {
	num  int
	base uint64
}

// NewDiskHandler opens (or recovers) the segment files for one partition.
func NewDiskHandler(cfg *config.Config, topicName string, partitionID, segmentSize int) (*DiskHandler, error) {
	base := filepath.Join(cfg.LogDir, topicName, fmt.Sprintf("partition_%d", partitionID))
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, err
	}

	dh := &DiskHandler{
		BaseName:     base,
		SegmentSize:  segmentSize,
		writeCh:      make(chan pendingWrite, cfg.ChannelBufferSize),
		done:         make(chan struct{}),
		batchSize:    cfg.DiskFlushBatchSize,
		linger:       time.Duration(cfg.LingerMS) * time.Millisecond,
		writeTimeout: time.Duration(cfg.DiskWriteTimeoutMS) * time.Millisecond,
	}

	if err := dh.recover(); err != nil {
		return nil, fmt.Errorf("recover segments for %s: %w", base, err)
	}

	if err := dh.openSegment(); err != nil {
		return nil, err
	}
	if err := dh.openIndexFile(); err != nil {
		return nil, err
	}

	dh.shutdown.Add(1)
	go func() {
		defer dh.shutdown.Done()
		dh.flushLoop()
	}()

	return dh, nil
}

// recover rebuilds segment metadata from the index files on disk.
func (d *DiskHandler) recover() error {
	pattern := d.BaseName + "_segment_*.log"
	files, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	segments := make([]int, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".log")
		idx := strings.LastIndex(name, "_")
		if idx < 0 {
			continue
		}
		n, err := strconv.Atoi(name[idx+1:])
		if err != nil {
			continue
		}
		segments = append(segments, n)
	}
	sort.Ints(segments)

	if len(segments) == 0 {
		d.CurrentSegment = 0
		d.segments = []segmentMeta{{num: 0, base: 0}}
		return nil
	}

	d.segments = make([]segmentMeta, 0, len(segments))
	next := uint64(0)
	for _, seg := range segments {
		base := next
		if first, ok := d.readFirstIndexOffset(seg); ok {
			base = first
		}
		d.segments = append(d.segments, segmentMeta{num: seg, base: base})
		next = base + d.countIndexEntries(seg)
	}
	d.CurrentSegment = segments[len(segments)-1]

	if info, err := os.Stat(d.GetSegmentPath(d.CurrentSegment)); err == nil {
		d.currentPos = int(info.Size())
	}

	d.nextOffset.Store(next)
	d.flushedOffset.Store(next)
	util.Info("💾 Recovered %s: %d segment(s), next offset %d", d.BaseName, len(segments), next)
	return nil
}

func (d *DiskHandler) countIndexEntries(segment int) uint64 {
	info, err := os.Stat(d.GetIndexPath(segment))
	if err != nil {
		return 0
	}
	return uint64(info.Size()) / types.IndexEntrySize
}

// GetSegmentPath returns the data file path for a segment number.
func (d *DiskHandler) GetSegmentPath(segment int) string {
	return fmt.Sprintf("%s_segment_%d.log", d.BaseName, segment)
}

// GetIndexPath returns the index file path for a segment number.
func (d *DiskHandler) GetIndexPath(segment int) string {
	return fmt.Sprintf("%s_segment_%d.index", d.BaseName, segment)
}

// GetLatestOffset returns the next offset to be assigned.
func (d *DiskHandler) GetLatestOffset() uint64 {
	return d.nextOffset.Load()
}

// GetFlushedOffset returns the first offset that is not yet durable.
func (d *DiskHandler) GetFlushedOffset() uint64 {
	return d.flushedOffset.Load()
}

// AppendEvent assigns the next offset and queues the event for asynchronous
// persistence. The returned offset is final.
func (d *DiskHandler) AppendEvent(topic string, partition int, ev *types.Event) (uint64, error) {
	frame, err := util.EncodeEvent(*ev)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}

	offset := d.nextOffset.Add(1) - 1
	pw := pendingWrite{offset: offset, frame: frame}

	for {
		select {
		case <-d.done:
			return 0, types.ErrUnavailable
		case d.writeCh <- pw:
			return offset, nil
		default:
		}

		if d.writeTimeout > 0 {
			timer := time.NewTimer(d.writeTimeout)
			select {
			case <-d.done:
				timer.Stop()
				return 0, types.ErrUnavailable
			case d.writeCh <- pw:
				timer.Stop()
				return offset, nil
			case <-timer.C:
				timer.Stop()
				util.Warn("⚠️ DiskHandler enqueue timed out after %s; retrying", d.writeTimeout)
			}
			continue
		}

		select {
		case <-d.done:
			return 0, types.ErrUnavailable
		case d.writeCh <- pw:
			return offset, nil
		}
	}
}

// Close signals the flushLoop to terminate and cleans up resources.
func (d *DiskHandler) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.shutdown.Wait()
	})
	return nil
}
