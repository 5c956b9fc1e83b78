package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory. Records live for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]UserSession
}

// NewMemoryStore constructs an empty in-memory store for tests and development.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]UserSession)}
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, userID int64) (UserSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok, nil
}

// Save upserts the session.
func (m *MemoryStore) Save(_ context.Context, s UserSession) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TelegramUserID] = s
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len reports how many sessions are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
