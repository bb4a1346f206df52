// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/dilemmaview/network"
)

// Session 一个视图连接
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.Mutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

// Touch 记录活跃时间
func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

// IdleSince returns the last activity time.
func (s *Session) IdleSince() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.LastActive
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// All returns a snapshot of the connected sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
