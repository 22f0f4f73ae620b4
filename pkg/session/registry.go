package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// Registry tracks live recipient sessions per channel. Entries expire when
// their TTL lapses without a heartbeat; absence of any session for a channel
// is not an error, it signals the offline branch.
type Registry struct {
	mu          sync.RWMutex
	byChannel   map[string]map[string]*Session // channel -> recipient -> session
	byRecipient map[string]*Session

	maxSessions int
	ttl         time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewRegistry creates a registry and starts its stale-session sweeper.
func NewRegistry(maxSessions int, ttl, sweepInterval time.Duration) *Registry {
	r := &Registry{
		byChannel:   make(map[string]map[string]*Session),
		byRecipient: make(map[string]*Session),
		maxSessions: maxSessions,
		ttl:         ttl,
		stopCh:      make(chan struct{}),
	}
	go r.sweepLoop(sweepInterval)
	return r
}

// Register adds a session, replacing any previous session for the recipient.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byRecipient[s.recipientID]; ok {
		r.removeLocked(old)
		old.close()
	}
	if len(r.byRecipient) >= r.maxSessions {
		return fmt.Errorf("%w: %d sessions", types.ErrCapacityExceeded, r.maxSessions)
	}

	if _, ok := r.byChannel[s.channelID]; !ok {
		r.byChannel[s.channelID] = make(map[string]*Session)
	}
	r.byChannel[s.channelID][s.recipientID] = s
	r.byRecipient[s.recipientID] = s

	util.Debug("session registered: recipient '%s' on channel '%s' via %s",
		s.recipientID, s.channelID, s.gatewayNode)
	return nil
}

// Heartbeat refreshes the recipient's session TTL.
func (r *Registry) Heartbeat(recipientID string) bool {
	r.mu.RLock()
	s, ok := r.byRecipient[recipientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.Touch()
	return true
}

// Unregister removes and closes the recipient's session.
func (r *Registry) Unregister(recipientID string) {
	r.mu.Lock()
	s, ok := r.byRecipient[recipientID]
	if ok {
		r.removeLocked(s)
	}
	r.mu.Unlock()
	if ok {
		s.close()
	}
}

// Lookup returns the live session locations for a channel.
func (r *Registry) Lookup(channelID string) ([]types.SessionLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipients := r.byChannel[channelID]
	locations := make([]types.SessionLocation, 0, len(recipients))
	for _, s := range recipients {
		locations = append(locations, types.SessionLocation{
			RecipientID: s.recipientID,
			GatewayNode: s.gatewayNode,
		})
	}
	return locations, nil
}

// SessionFor returns the live session of a recipient, if any.
func (r *Registry) SessionFor(recipientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byRecipient[recipientID]
	return s, ok
}

// Deliver pushes a payload to a recipient's live session.
func (r *Registry) Deliver(recipientID string, payload []byte) error {
	s, ok := r.SessionFor(recipientID)
	if !ok {
		return fmt.Errorf("no live session for '%s': %w", recipientID, types.ErrUnavailable)
	}
	return s.Deliver(payload)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRecipient)
}

func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	var stale []*Session
	for _, s := range r.byRecipient {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			r.removeLocked(s)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		util.Info("🧹 expired stale session: recipient '%s' on channel '%s'", s.recipientID, s.channelID)
		s.close()
	}
}

// removeLocked unlinks a session from both indexes. Caller must hold r.mu.
func (r *Registry) removeLocked(s *Session) {
	delete(r.byRecipient, s.recipientID)
	if recipients, ok := r.byChannel[s.channelID]; ok {
		delete(recipients, s.recipientID)
		if len(recipients) == 0 {
			delete(r.byChannel, s.channelID)
		}
	}
}

// Close stops the sweeper and closes every session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byRecipient))
	for _, s := range r.byRecipient {
		sessions = append(sessions, s)
	}
	r.byChannel = make(map[string]map[string]*Session)
	r.byRecipient = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
