package delivery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/notifylab/fanout/pkg/types"
)

// archivedRecord is the JSON line written for each terminal record.
type archivedRecord struct {
	EventID       string    `json:"event_id"`
	RecipientID   string    `json:"recipient_id"`
	State         string    `json:"state"`
	AttemptCount  int       `json:"attempt_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// Archive is an append-only JSON-lines file of terminal delivery records.
type Archive struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func NewArchive(path string) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open delivery archive '%s': %w", path, err)
	}
	return &Archive{file: f, w: bufio.NewWriter(f)}, nil
}

func (a *Archive) Append(rec types.DeliveryRecord) error {
	line, err := json.Marshal(archivedRecord{
		EventID:       rec.EventID,
		RecipientID:   rec.RecipientID,
		State:         rec.State.String(),
		AttemptCount:  rec.AttemptCount,
		LastAttemptAt: rec.LastAttemptAt,
		ArchivedAt:    time.Now(),
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(line); err != nil {
		return err
	}
	if err := a.w.WriteByte('\n'); err != nil {
		return err
	}
	return a.w.Flush()
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.file.Close()
}
