// Package gateway terminates the companion device's WebSocket, routes
// inbound audio onto the bus, and pushes synthesized responses back to
// the device. One device, one active session; a reconnect replaces the
// previous socket and starts a fresh conversation context.
package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/hearth/logger"
)

// deviceSession is one live socket. Writes are serialized through mu;
// gorilla allows only one concurrent writer.
type deviceSession struct {
	deviceID    string
	sessionID   string
	conn        *websocket.Conn
	connectedAt time.Time

	mu       sync.Mutex
	sequence int64
}

func newDeviceSession(deviceID string, conn *websocket.Conn) *deviceSession {
	now := time.Now().UTC()
	return &deviceSession{
		deviceID:    deviceID,
		sessionID:   fmt.Sprintf("%s-%d", deviceID, now.UnixMilli()),
		conn:        conn,
		connectedAt: now,
	}
}

// nextSequence numbers inbound chunks within the session.
func (s *deviceSession) nextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

func (s *deviceSession) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *deviceSession) close() {
	_ = s.conn.Close()
}

// sessionManager enforces the single-session policy.
type sessionManager struct {
	mu      sync.Mutex
	session *deviceSession
}

// replace installs a new session, closing and returning any previous
// one.
func (m *sessionManager) replace(s *deviceSession) {
	m.mu.Lock()
	old := m.session
	m.session = s
	m.mu.Unlock()

	if old != nil {
		old.close()
		logger.Warn("replaced_existing_connection",
			"old_session_id", old.sessionID, "new_session_id", s.sessionID)
	}
}

// remove clears the session if it is still the active one. A session
// that was already replaced must not evict its successor.
func (m *sessionManager) remove(s *deviceSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == s {
		m.session = nil
	}
}

func (m *sessionManager) current() *deviceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *sessionManager) connected() bool {
	return m.current() != nil
}

// closeAll closes the active socket during shutdown.
func (m *sessionManager) closeAll() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s != nil {
		s.close()
	}
}

// pendingRequests tracks request-start times by session so pipeline
// latency can be computed when the response comes back. Only the
// whole-utterance path records entries; streamed audio has no single
// request moment until VAD emits.
type pendingRequests struct {
	mu      sync.Mutex
	started map[string]time.Time
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{started: make(map[string]time.Time)}
}

func (p *pendingRequests) start(sessionID string) {
	p.mu.Lock()
	p.started[sessionID] = time.Now().UTC()
	p.mu.Unlock()
}

func (p *pendingRequests) take(sessionID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.started[sessionID]
	if ok {
		delete(p.started, sessionID)
	}
	return t, ok
}
