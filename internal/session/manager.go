// CRC: crc-SessionManager.md
package session

import (
	"sync"
	"time"
)

// Manager tracks the sessions of connected clients on the dev server.
type Manager struct {
	sessions       map[string]*Session
	sessionTimeout time.Duration
	mu             sync.RWMutex
}

// NewManager creates a new session manager.
func NewManager(sessionTimeout time.Duration) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		sessionTimeout: sessionTimeout,
	}
}

// GetOrCreate returns the session for id, creating it if needed.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewSession(id)
	s.SetAuthenticated(true)
	m.sessions[s.ID] = s
	return s
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// DestroySession removes a session.
func (m *Manager) DestroySession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// CleanupInactiveSessions removes sessions with no activity past the timeout.
func (m *Manager) CleanupInactiveSessions() int {
	if m.sessionTimeout == 0 {
		return 0 // Never cleanup
	}

	m.mu.RLock()
	cutoff := time.Now().Add(-m.sessionTimeout)
	var toRemove []string
	for id, s := range m.sessions {
		if s.GetLastActivity().Before(cutoff) {
			toRemove = append(toRemove, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range toRemove {
		m.DestroySession(id)
	}
	return len(toRemove)
}

// Count returns the number of sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
