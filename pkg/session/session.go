package session

import (
	"net"
	"sync"
	"time"

	"github.com/notifylab/fanout/util"
)

// Session is one recipient's live gateway connection.
type Session struct {
	recipientID string
	channelID   string
	gatewayNode string
	conn        net.Conn

	mu         sync.Mutex
	lastActive time.Time
	delivered  uint64
}

// NewSession wraps a gateway connection for a recipient on a channel.
func NewSession(conn net.Conn, channelID, recipientID, gatewayNode string) *Session {
	return &Session{
		recipientID: recipientID,
		channelID:   channelID,
		gatewayNode: gatewayNode,
		conn:        conn,
		lastActive:  time.Now(),
	}
}

func (s *Session) RecipientID() string { return s.recipientID }
func (s *Session) ChannelID() string   { return s.channelID }
func (s *Session) GatewayNode() string { return s.gatewayNode }

// Deliver pushes a payload over the live connection. A successful write is
// the confirmation that moves a delivery record to Delivered.
func (s *Session) Deliver(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return net.ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(1 * time.Second)); err != nil {
		return err
	}
	if err := util.WriteWithLength(s.conn, payload); err != nil {
		return err
	}

	s.delivered++
	s.lastActive = time.Now()
	return nil
}

// Touch refreshes the session's last-active timestamp (heartbeat).
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Delivered returns the count of payloads pushed over this session.
func (s *Session) Delivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			util.Debug("session close for '%s': %v", s.recipientID, err)
		}
		s.conn = nil
	}
}
