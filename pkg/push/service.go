package push

import (
	"sync"

	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/util"
)

// Notification is a summary handed to the push collaborator for a recipient
// with no live session.
type Notification struct {
	RecipientID string
	EventID     string
	Summary     string
}

// Service is the push-notification collaborator boundary. Enqueue is
// fire-and-forget: a false return is logged by callers, never retried.
type Service interface {
	Enqueue(n Notification) bool
}

// Queue is a bounded in-memory push handoff. A real deployment drains it
// into an external provider; the engine itself never looks at it again.
type Queue struct {
	mu      sync.Mutex
	pending []Notification
	limit   int
}

func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Enqueue accepts the notification unless the queue is full.
func (q *Queue) Enqueue(n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.limit {
		util.Warn("⚠️ push queue full (%d), dropping notification for '%s'", q.limit, n.RecipientID)
		return false
	}
	q.pending = append(q.pending, n)
	metrics.PushHandoffs.Inc()
	return true
}

// Drain removes and returns up to max queued notifications.
func (q *Queue) Drain(max int) []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || max > len(q.pending) {
		max = len(q.pending)
	}
	out := make([]Notification, max)
	copy(out, q.pending[:max])
	q.pending = q.pending[max:]
	return out
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
