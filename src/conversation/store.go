package conversation

import (
	"context"
	"sync"
	"time"
)

// Store persists the raw entries of each session.
type Store interface {
	// Load returns an empty map, not an error, for unknown sessions.
	Load(ctx context.Context, sessionID string) (map[string]Entry, error)
	Save(ctx context.Context, sessionID string, entries map[string]Entry) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Entry
	now      func() time.Time
}

// NewMemoryStore creates an in-memory store. Only WithClock is meaningful here.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := newSettings(opts)
	return &MemoryStore{
		sessions: make(map[string]map[string]Entry),
		now:      s.now,
	}
}

// Load drops a session whose entries have all expired.
func (m *MemoryStore) Load(_ context.Context, sessionID string) (map[string]Entry, error) {
	m.mu.RLock()
	stored, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return map[string]Entry{}, nil
	}

	now := m.now()
	out := make(map[string]Entry, len(stored))
	for k, v := range stored {
		if now.Before(v.ExpiresAt) {
			out[k] = v
		}
	}

	if len(out) == 0 {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
	}
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, entries map[string]Entry) error {
	cp := make(map[string]Entry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}

	m.mu.Lock()
	m.sessions[sessionID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// PruneAll drops expired entries across every session and returns how many sessions were removed.
func (m *MemoryStore) PruneAll() int {
	now := m.now()
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entries := range m.sessions {
		for k, v := range entries {
			if !now.Before(v.ExpiresAt) {
				delete(entries, k)
			}
		}
		if len(entries) == 0 {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Sessions counts stored sessions.
func (m *MemoryStore) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
