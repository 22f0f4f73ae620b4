package offset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/util"
)

// OffsetManager tracks the committed read offset per (group, topic,
// partition). Offsets are snapshotted to disk so the next owner of a
// partition resumes from the last committed position, never from an
// assumed in-memory one.
type OffsetManager struct {
	mu      sync.RWMutex
	offsets map[string]map[string]map[int]uint64 // group -> topic -> partition -> offset
	path    string
	dirty   bool
}

type offsetEntry struct {
	Group     string `json:"group"`
	Topic     string `json:"topic"`
	Partition int    `json:"partition"`
	Offset    uint64 `json:"offset"`
}

// NewOffsetManager loads the snapshot at path, if any. An empty path keeps
// offsets in memory only.
func NewOffsetManager(path string) (*OffsetManager, error) {
	om := &OffsetManager{
		offsets: make(map[string]map[string]map[int]uint64),
		path:    path,
	}
	if path == "" {
		return om, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return om, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read offset snapshot: %w", err)
	}

	var entries []offsetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse offset snapshot: %w", err)
	}
	for _, e := range entries {
		om.set(e.Group, e.Topic, e.Partition, e.Offset)
	}
	util.Info("💾 loaded %d committed offsets from %s", len(entries), path)
	return om, nil
}

// GetOffset returns the committed offset, or an error when none exists yet.
func (om *OffsetManager) GetOffset(groupID, topic string, partition int) (uint64, error) {
	om.mu.RLock()
	defer om.mu.RUnlock()

	if topics, ok := om.offsets[groupID]; ok {
		if partitions, ok := topics[topic]; ok {
			if offset, ok := partitions[partition]; ok {
				return offset, nil
			}
		}
	}
	return 0, fmt.Errorf("no offset found")
}

// CommitOffset records the next offset to read for the partition.
func (om *OffsetManager) CommitOffset(groupID, topic string, partition int, offset uint64) error {
	om.mu.Lock()
	defer om.mu.Unlock()

	om.set(groupID, topic, partition, offset)
	om.dirty = true
	metrics.OffsetCommits.Inc()
	return nil
}

func (om *OffsetManager) set(groupID, topic string, partition int, offset uint64) {
	if _, ok := om.offsets[groupID]; !ok {
		om.offsets[groupID] = make(map[string]map[int]uint64)
	}
	if _, ok := om.offsets[groupID][topic]; !ok {
		om.offsets[groupID][topic] = make(map[int]uint64)
	}
	om.offsets[groupID][topic][partition] = offset
}

// Flush writes the snapshot atomically when anything changed.
func (om *OffsetManager) Flush() error {
	om.mu.Lock()
	defer om.mu.Unlock()

	if om.path == "" || !om.dirty {
		return nil
	}

	entries := make([]offsetEntry, 0)
	for group, topics := range om.offsets {
		for topic, partitions := range topics {
			for partition, offset := range partitions {
				entries = append(entries, offsetEntry{
					Group: group, Topic: topic, Partition: partition, Offset: offset,
				})
			}
		}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal offsets: %w", err)
	}

	tmp := om.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(om.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write offset snapshot: %w", err)
	}
	if err := os.Rename(tmp, om.path); err != nil {
		return fmt.Errorf("replace offset snapshot: %w", err)
	}

	om.dirty = false
	return nil
}
