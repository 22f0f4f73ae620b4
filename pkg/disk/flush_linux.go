//go:build linux

package disk

import (
	"bufio"
	"os"

	"golang.org/x/sys/unix"
)

func (d *DiskHandler) openSegment() error {
	flags := os.O_CREATE | os.O_RDWR | os.O_APPEND
	f, err := os.OpenFile(d.GetSegmentPath(d.CurrentSegment), flags, 0o644)
	if err != nil {
		return err
	}
	d.file = f
	d.writer = bufio.NewWriter(f)

	// Linux: sequential access hint
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	return nil
}

// syncFile uses fdatasync on linux: the segment length is carried by the
// index file, so file metadata does not need to reach disk on every batch.
func syncFile(f *os.File) error {
	if f == nil {
		return nil
	}
	return unix.Fdatasync(int(f.Fd()))
}
