package disk

import (
	"encoding/binary"
	"time"

	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

func (d *DiskHandler) flushLoop() {
	batch := make([]pendingWrite, 0, d.batchSize)
	ticker := time.NewTicker(d.linger)
	defer ticker.Stop()

	for {
		select {
		case pw := <-d.writeCh:
			batch = append(batch, pw)
			if len(batch) >= d.batchSize {
				d.writeBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.writeBatch(batch)
				batch = batch[:0]
			}
		case <-d.done:
			draining := true
			for draining {
				if len(batch) >= d.batchSize {
					d.writeBatch(batch)
					batch = batch[:0]
					continue
				}
				select {
				case pw := <-d.writeCh:
					batch = append(batch, pw)
				default:
					draining = false
				}
			}
			if len(batch) > 0 {
				d.writeBatch(batch)
			}
			d.closeFiles()
			return
		}
	}
}

// writeBatch appends frames and their index entries, then makes both durable.
func (d *DiskHandler) writeBatch(batch []pendingWrite) {
	if len(batch) == 0 {
		return
	}

	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ioMu.Lock()
	defer d.ioMu.Unlock()

	if d.file == nil {
		if err := d.openSegment(); err != nil {
			util.Error("❌ failed to open segment: %v", err)
			return
		}
	}

	var lenBuf [4]byte
	var last uint64
	written := 0

	for _, pw := range batch {
		totalLen := 4 + len(pw.frame)
		if d.currentPos > 0 && d.currentPos+totalLen > d.SegmentSize {
			if err := d.rotateSegment(pw.offset); err != nil {
				util.Error("❌ rotateSegment failed: %v", err)
				break
			}
		}

		idxBuf := encodeIndexEntry(types.IndexEntry{Offset: pw.offset, Position: uint64(d.currentPos)})
		if _, err := d.indexWriter.Write(idxBuf[:]); err != nil {
			util.Error("❌ writeBatch failed writing index entry: %v", err)
			break
		}

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(pw.frame)))
		if _, err := d.writer.Write(lenBuf[:]); err != nil {
			util.Error("❌ writeBatch failed writing length: %v", err)
			break
		}
		if _, err := d.writer.Write(pw.frame); err != nil {
			util.Error("❌ writeBatch failed writing frame: %v", err)
			break
		}

		d.currentPos += totalLen
		last = pw.offset
		written++
	}

	if err := d.writer.Flush(); err != nil {
		util.Error("❌ flush failed after batch: %v", err)
		return
	}
	if err := d.indexWriter.Flush(); err != nil {
		util.Error("❌ index flush failed after batch: %v", err)
		return
	}
	if err := syncFile(d.file); err != nil {
		util.Error("❌ sync failed after batch: %v", err)
		return
	}
	if err := syncFile(d.indexFile); err != nil {
		util.Error("❌ index sync failed after batch: %v", err)
		return
	}

	if written == 0 {
		return
	}

	metrics.FlushBatches.Inc()
	metrics.EventsFlushed.Add(float64(written))
	metrics.FlushLatency.Observe(time.Since(start).Seconds())

	d.flushedOffset.Store(last + 1)
	if d.OnSync != nil {
		d.OnSync(last + 1)
	}
}

// rotateSegment closes the current files and starts a new segment whose
// first offset will be nextBase.
func (d *DiskHandler) rotateSegment(nextBase uint64) error {
	if err := d.flushAndCloseFiles(); err != nil {
		util.Error("⚠️ close failed during segment rotation: %v", err)
	}
	d.CurrentSegment++
	d.currentPos = 0
	d.segments = append(d.segments, segmentMeta{num: d.CurrentSegment, base: nextBase})

	if err := d.openSegment(); err != nil {
		return err
	}
	return d.openIndexFile()
}

// Flush drains any queued writes to disk synchronously.
func (d *DiskHandler) Flush() {
	batch := make([]pendingWrite, 0, len(d.writeCh))
	for {
		select {
		case pw := <-d.writeCh:
			batch = append(batch, pw)
		default:
			d.writeBatch(batch)
			return
		}
	}
}

func (d *DiskHandler) flushAndCloseFiles() error {
	var firstErr error
	if d.writer != nil {
		if err := d.writer.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.indexWriter != nil {
		if err := d.indexWriter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.file != nil {
		if err := d.file.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.file = nil
		d.writer = nil
	}
	if d.indexFile != nil {
		if err := d.indexFile.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := d.indexFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.indexFile = nil
		d.indexWriter = nil
	}
	return firstErr
}

func (d *DiskHandler) closeFiles() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ioMu.Lock()
	defer d.ioMu.Unlock()
	if err := d.flushAndCloseFiles(); err != nil {
		util.Error("⚠️ close failed during shutdown: %v", err)
	}
}
