// Test Design: test-Session.md
// CRC: crc-Session.md, crc-SessionManager.md
package session

import (
	"sync"
	"testing"
	"time"
)

// TestNewSessionGate verifies the communication gate defaults
func TestNewSessionGate(t *testing.T) {
	s := NewSession("")

	if s.ID == "" {
		t.Fatal("Expected generated session ID")
	}
	if !s.CommunicationEnabled() {
		t.Error("Communication should start enabled")
	}
	if s.CanCommunicate() {
		t.Error("Unauthenticated session should not communicate")
	}

	s.SetAuthenticated(true)
	if !s.CanCommunicate() {
		t.Error("Authenticated session with communication enabled should communicate")
	}

	s.SetCommunicationEnabled(false)
	if s.CanCommunicate() {
		t.Error("Disabled communication should block")
	}
}

// TestSessionIDUniqueness verifies unique session IDs
func TestSessionIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateSessionID()
		if ids[id] {
			t.Fatalf("Duplicate session ID: %s", id)
		}
		ids[id] = true
	}
}

func TestObserveSortOrders(t *testing.T) {
	s := NewSession("c1")

	if _, ok := s.ObserveSortOrders([]int64{1, 2, 2, 3}); !ok {
		t.Error("Non-decreasing sort orders should be accepted")
	}
	if s.LastSortOrder() != 3 {
		t.Errorf("Expected last sort order 3, got %d", s.LastSortOrder())
	}
	if _, ok := s.ObserveSortOrders([]int64{3, 4}); !ok {
		t.Error("Repeating the previous sort order across batches is allowed")
	}
	bad, ok := s.ObserveSortOrders([]int64{5, 2})
	if ok || bad != 2 {
		t.Errorf("Expected regression at 2, got %d ok=%v", bad, ok)
	}
	if s.LastSortOrder() != 4 {
		t.Errorf("Rejected batch should not move the last sort order, got %d", s.LastSortOrder())
	}
	if s.Batches() != 2 {
		t.Errorf("Rejected batch should not count, got %d batches", s.Batches())
	}

	// corrected resend starting below the rejected batch's first entry
	if bad, ok := s.ObserveSortOrders([]int64{4, 5}); !ok {
		t.Errorf("Corrected resend should be accepted, rejected at %d", bad)
	}
	if s.LastSortOrder() != 5 || s.Batches() != 3 {
		t.Errorf("Expected last sort order 5 after 3 batches, got %d after %d", s.LastSortOrder(), s.Batches())
	}
}

func TestTouchRefreshesActivity(t *testing.T) {
	s := NewSession("c1")
	before := s.GetLastActivity()
	time.Sleep(5 * time.Millisecond)
	s.Touch()
	if !s.GetLastActivity().After(before) {
		t.Error("Touch should move the last activity time forward")
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(time.Hour)

	a := m.GetOrCreate("client-a")
	b := m.GetOrCreate("client-a")
	if a != b {
		t.Error("GetOrCreate should return the same session for the same ID")
	}
	if !a.Authenticated() {
		t.Error("Server-side sessions are authenticated on creation")
	}
	if m.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", m.Count())
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.GetOrCreate("client-b")
		}()
	}
	wg.Wait()
	if m.Count() != 2 {
		t.Errorf("Expected 2 sessions after concurrent creates, got %d", m.Count())
	}
}

func TestCleanupInactiveSessions(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.GetOrCreate("old")

	time.Sleep(20 * time.Millisecond)
	m.GetOrCreate("new")

	if n := m.CleanupInactiveSessions(); n != 1 {
		t.Errorf("Expected 1 session removed, got %d", n)
	}
	if _, ok := m.GetSession("old"); ok {
		t.Error("old session should be gone")
	}
	if _, ok := m.GetSession("new"); !ok {
		t.Error("new session should remain")
	}
}
