package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medcmd/pkg"
	"medcmd/src/logger"
)

// Pruner is implemented by stores that keep expired sessions until swept.
type Pruner interface {
	PruneAll() int
}

// SessionLocker is implemented by stores shared between processes. Its lock is
// taken on top of the in-process one.
type SessionLocker interface {
	LockSession(ctx context.Context, sessionID string) (unlock func(), err error)
}

// HealthChecker is implemented by stores backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Manager loads, mutates and saves session contexts. Turns of the same session
// run one at a time; different sessions never wait on each other.
type Manager struct {
	store Store
	opts  []Option

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a manager over store. Options set the entry TTL and clock.
func NewManager(store Store, opts ...Option) *Manager {
	return &Manager{
		store: store,
		opts:  opts,
		locks: make(map[string]*sessionLock),
	}
}

// WithSession runs fn with exclusive access to the session's context and
// persists the result when fn succeeds.
func (m *Manager) WithSession(ctx context.Context, sessionID string, fn func(*Context) error) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	c := NewContext(sessionID, m.opts...)
	c.load(entries)
	c.Prune()

	if err := fn(c); err != nil {
		return err
	}

	c.Prune()
	if c.Len() == 0 {
		return m.store.Delete(ctx, sessionID)
	}
	if err := m.store.Save(ctx, sessionID, c.Entries()); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// Snapshot reads the session without changing it.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (pkg.ContextSnapshot, error) {
	var snap pkg.ContextSnapshot
	err := m.WithSession(ctx, sessionID, func(c *Context) error {
		snap = c.Snapshot()
		return nil
	})
	return snap, err
}

// Clear forgets everything about a session.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return m.store.Delete(ctx, sessionID)
}

// Prune sweeps expired sessions from stores that do not expire keys themselves.
func (m *Manager) Prune() int {
	p, ok := m.store.(Pruner)
	if !ok {
		return 0
	}
	return p.PruneAll()
}

// HealthCheck reports whether the store is reachable. Local stores are always healthy.
func (m *Manager) HealthCheck(ctx context.Context) error {
	h, ok := m.store.(HealthChecker)
	if !ok {
		return nil
	}
	return h.HealthCheck(ctx)
}

// RunJanitor calls Prune every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	if _, ok := m.store.(Pruner); !ok {
		return
	}

	log := logger.Component("janitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(); n > 0 {
				log.Debug().Int("sessions", n).Msg("Pruned expired sessions")
			}
		}
	}
}

// lock serializes the session in this process, then across processes when the
// store supports it.
func (m *Manager) lock(ctx context.Context, sessionID string) (func(), error) {
	release := m.localLock(sessionID)

	locker, ok := m.store.(SessionLocker)
	if !ok {
		return release, nil
	}
	unlock, err := locker.LockSession(ctx, sessionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	return func() {
		unlock()
		release()
	}, nil
}

func (m *Manager) localLock(sessionID string) func() {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}
}
