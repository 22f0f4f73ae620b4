package disk

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/notifylab/fanout/util"
)

// EnforceRetention removes whole expired segments, never the current one.
// Deferred while readers are active; purged offsets fail subsequent reads
// with a retention-floor error rather than silently returning nothing.
func (d *DiskHandler) EnforceRetention(retention time.Duration) {
	if retention <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if readers := atomic.LoadInt32(&d.activeReaders); readers > 0 {
		util.Debug("Retention: deferred (active readers: %d)", readers)
		return
	}

	now := time.Now()
	kept := d.segments[:0]
	for i, seg := range d.segments {
		if i == len(d.segments)-1 {
			kept = append(kept, seg)
			continue
		}

		path := d.GetSegmentPath(seg.num)
		info, err := os.Stat(path)
		if err != nil {
			kept = append(kept, seg)
			continue
		}
		if now.Sub(info.ModTime()) <= retention {
			kept = append(kept, seg)
			continue
		}

		if err := os.Remove(path); err != nil {
			util.Warn("⚠️ retention failed to remove %s: %v", path, err)
			kept = append(kept, seg)
			continue
		}
		if err := os.Remove(d.GetIndexPath(seg.num)); err != nil {
			util.Warn("⚠️ retention failed to remove index for segment %d: %v", seg.num, err)
		}
		util.Info("🧹 retention removed segment %d of %s (base offset %d)", seg.num, d.BaseName, seg.base)
	}
	d.segments = kept
}
