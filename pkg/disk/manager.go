package disk

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

type DiskManager struct {
	mu       sync.Mutex
	handlers map[string]*DiskHandler
	cfg      *config.Config
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewDiskManager(cfg *config.Config) *DiskManager {
	dm := &DiskManager{
		handlers: make(map[string]*DiskHandler),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
	if cfg.RetentionMS > 0 {
		go dm.retentionLoop()
	}
	return dm
}

// GetHandler returns a DiskHandler for a given name or creates one if missing
func (dm *DiskManager) GetHandler(topic string, partitionID int) (*DiskHandler, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	key := fmt.Sprintf("%s_%d", topic, partitionID)
	if dh, ok := dm.handlers[key]; ok {
		return dh, nil
	}

	segmentSize := dm.cfg.SegmentSize
	if segmentSize == 0 {
		segmentSize = 1024 * 1024
	}

	if err := os.MkdirAll(dm.cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dm.cfg.LogDir, err)
	}

	dh, err := NewDiskHandler(dm.cfg, topic, partitionID, segmentSize)
	if err != nil {
		return nil, err
	}

	dm.handlers[key] = dh
	return dh, nil
}

// HandlerProvider adapts DiskManager for consumers of types.StorageHandler.
type HandlerProvider struct {
	dm *DiskManager
}

func (dm *DiskManager) Provider() HandlerProvider {
	return HandlerProvider{dm: dm}
}

func (hp HandlerProvider) GetHandler(topic string, partitionID int) (types.StorageHandler, error) {
	return hp.dm.GetHandler(topic, partitionID)
}

func (dm *DiskManager) retentionLoop() {
	retention := time.Duration(dm.cfg.RetentionMS) * time.Millisecond
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dm.mu.Lock()
			handlers := make([]*DiskHandler, 0, len(dm.handlers))
			for _, dh := range dm.handlers {
				handlers = append(handlers, dh)
			}
			dm.mu.Unlock()

			for _, dh := range handlers {
				dh.EnforceRetention(retention)
			}
		case <-dm.stopCh:
			return
		}
	}
}

// Flush drains queued writes on every handler.
func (dm *DiskManager) Flush() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, dh := range dm.handlers {
		dh.Flush()
	}
}

// CloseAllHandlers shuts every DiskHandler down cleanly.
func (dm *DiskManager) CloseAllHandlers() {
	dm.stopOnce.Do(func() { close(dm.stopCh) })

	dm.mu.Lock()
	defer dm.mu.Unlock()
	for name, dh := range dm.handlers {
		util.Debug("Closing DiskHandler for %s", name)
		if err := dh.Close(); err != nil {
			util.Warn("⚠️ close failed for %s: %v", name, err)
		}
		delete(dm.handlers, name)
	}
}
