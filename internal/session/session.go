// Package session tracks player sessions: whether the client may talk to the
// server at all, and on the server side, what each client has sent so far.
// CRC: crc-Session.md, crc-SessionManager.md
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session represents a single player session.
// CRC: crc-Session.md
type Session struct {
	ID string

	authenticated        bool
	communicationEnabled bool

	lastSortOrder int64 // highest sort_order received (server side)
	batches       int

	createdAt    time.Time
	lastActivity time.Time
	mu           sync.RWMutex
}

// NewSession creates a session with the given ID, or a fresh UUID when id is empty.
// Communication starts enabled; authentication starts false.
func NewSession(id string) *Session {
	if id == "" {
		id = GenerateSessionID()
	}
	now := time.Now()
	return &Session{
		ID:                   id,
		communicationEnabled: true,
		createdAt:            now,
		lastActivity:         now,
	}
}

// SetAuthenticated records whether the player is logged in.
func (s *Session) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

// Authenticated reports whether the player is logged in.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// SetCommunicationEnabled turns server communication on or off.
func (s *Session) SetCommunicationEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communicationEnabled = v
}

// CommunicationEnabled reports whether server communication is on.
func (s *Session) CommunicationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.communicationEnabled
}

// CanCommunicate reports whether actions may be queued and sent.
func (s *Session) CanCommunicate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated && s.communicationEnabled
}

// ObserveSortOrders records a received batch.
// Returns the first sort_order that went backwards, if any; sort orders may
// repeat (read-only actions) but never decrease. A rejected batch leaves the
// recorded state unchanged so a corrected resend is accepted.
func (s *Session) ObserveSortOrders(orders []int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
	last := s.lastSortOrder
	for _, o := range orders {
		if o < last {
			return o, false
		}
		last = o
	}
	s.lastSortOrder = last
	s.batches++
	return 0, true
}

// LastSortOrder returns the highest sort_order received.
func (s *Session) LastSortOrder() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSortOrder
}

// Batches returns the number of batches received.
func (s *Session) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}

// Touch marks the session active, e.g. on websocket traffic.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// GetLastActivity returns the last activity time.
func (s *Session) GetLastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// GenerateSessionID creates a unique session identifier.
func GenerateSessionID() string {
	return uuid.NewString()
}
