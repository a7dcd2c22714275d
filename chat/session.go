// Package chat implements one round-trip of conversation: per-session
// state, retrieval-augmented prompt composition and the call to the
// chat model.
package chat

import (
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

const (
	// defaultMaxMessages caps the retained conversation window
	defaultMaxMessages = 20
	// defaultIdleTimeout expires sessions with no activity
	defaultIdleTimeout = 30 * time.Minute
)

// Session holds one conversation's ordered message log. It lives in
// process memory only and is mutated by a single request at a time.
type Session struct {
	ID string

	mu          sync.Mutex
	msgs        []*schema.Message
	maxMessages int
	lastActive  time.Time
}

// Append adds a message, trimming the oldest beyond the window.
func (s *Session) Append(msg *schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, msg)
	if len(s.msgs) > s.maxMessages {
		s.msgs = s.msgs[len(s.msgs)-s.maxMessages:]
	}
	s.lastActive = time.Now()
}

// History returns a copy of the message log.
func (s *Session) History() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*schema.Message, len(s.msgs))
	copy(result, s.msgs)
	return result
}

// Replace swaps the log for a caller-provided history, so stateless
// clients can carry their own turns.
func (s *Session) Replace(msgs []*schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = msgs
	if len(s.msgs) > s.maxMessages {
		s.msgs = s.msgs[len(s.msgs)-s.maxMessages:]
	}
	s.lastActive = time.Now()
}

// Clear empties the log. Irreversible.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = nil
	s.lastActive = time.Now()
}

// Len returns the number of retained messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Manager owns all live sessions: creation, lookup, expiry.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	maxMessages int
	idleTimeout time.Duration
}

// NewManager creates a session manager with default limits.
func NewManager() *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxMessages: defaultMaxMessages,
		idleTimeout: defaultIdleTimeout,
	}
}

// GetOrCreate returns the session with the given ID, creating a fresh
// one (with a new ID) when the ID is empty or unknown.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			return s
		}
	}

	s := &Session{
		ID:          uuid.NewString(),
		maxMessages: m.maxMessages,
		lastActive:  time.Now(),
	}
	m.sessions[s.ID] = s
	return s
}

// Get returns the session with the given ID, if it exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session entirely.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// PruneExpired removes sessions idle longer than the timeout and
// returns how many were dropped.
func (m *Manager) PruneExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.idleTimeout)
	pruned := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			pruned++
		}
	}
	return pruned
}
