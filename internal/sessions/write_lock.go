package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nexusrun/coreagent/pkg/models"
)

// ErrLockTimeout is returned when acquiring a session's write lock times out.
var ErrLockTimeout = errors.New("session: lock acquisition timeout")

// SessionLock is one session's write lock: held/free state plus who holds it.
type SessionLock struct {
	holder   string
	acquired time.Time
	mu       sync.Mutex
	cond     *sync.Cond
	locked   bool
}

// SessionLockManager serializes writers per session id: only one caller
// may hold a given session's lock at a time. Entries for sessions with no
// current holder are garbage-collected periodically so the map doesn't
// grow unboundedly over a long-running process.
type SessionLockManager struct {
	locks      map[string]*SessionLock
	mu         sync.RWMutex
	defaultTTL time.Duration
}

// NewSessionLockManager creates a manager whose Acquire calls default to
// waiting up to defaultTTL for the lock.
func NewSessionLockManager(defaultTTL time.Duration) *SessionLockManager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	mgr := &SessionLockManager{
		locks:      make(map[string]*SessionLock),
		defaultTTL: defaultTTL,
	}
	go mgr.cleanupLoop()
	return mgr
}

// Acquire blocks until sessionID's lock is free or timeout (defaultTTL if
// <= 0) elapses, then returns a release function the caller must call.
func (m *SessionLockManager) Acquire(ctx context.Context, sessionID, holder string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = m.defaultTTL
	}

	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &SessionLock{}
		lock.cond = sync.NewCond(&lock.mu)
		m.locks[sessionID] = lock
	}
	m.mu.Unlock()

	lock.mu.Lock()
	defer lock.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for lock.locked {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrLockTimeout
		}

		done := make(chan struct{})
		go func() {
			lock.cond.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(remaining):
			return nil, ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	lock.locked = true
	lock.holder = holder
	lock.acquired = time.Now()

	release := func() {
		lock.mu.Lock()
		defer lock.mu.Unlock()
		lock.locked = false
		lock.holder = ""
		lock.cond.Broadcast()
	}
	return release, nil
}

// IsLocked reports whether sessionID is currently locked.
func (m *SessionLockManager) IsLocked(sessionID string) bool {
	m.mu.RLock()
	lock, ok := m.locks[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	lock.mu.Lock()
	defer lock.mu.Unlock()
	return lock.locked
}

func (m *SessionLockManager) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.cleanup()
	}
}

func (m *SessionLockManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for id, lock := range m.locks {
		lock.mu.Lock()
		if !lock.locked && lock.acquired.Before(cutoff) {
			delete(m.locks, id)
		}
		lock.mu.Unlock()
	}
}

// LockingStore wraps a Store so every write acquires the session's write
// lock first, serializing concurrent orchestrator runs against one session.
type LockingStore struct {
	Store
	locks  *SessionLockManager
	holder string
}

// NewLockingStore wraps store with write locking; holder identifies this
// writer in lock diagnostics (e.g. a worker id).
func NewLockingStore(store Store, locks *SessionLockManager, holder string) *LockingStore {
	return &LockingStore{Store: store, locks: locks, holder: holder}
}

func (s *LockingStore) Create(ctx context.Context, session *models.Session) error {
	release, err := s.locks.Acquire(ctx, session.ID, s.holder, 0)
	if err != nil {
		return err
	}
	defer release()
	return s.Store.Create(ctx, session)
}

func (s *LockingStore) Update(ctx context.Context, session *models.Session) error {
	release, err := s.locks.Acquire(ctx, session.ID, s.holder, 0)
	if err != nil {
		return err
	}
	defer release()
	return s.Store.Update(ctx, session)
}

func (s *LockingStore) Delete(ctx context.Context, id string) error {
	release, err := s.locks.Acquire(ctx, id, s.holder, 0)
	if err != nil {
		return err
	}
	defer release()
	return s.Store.Delete(ctx, id)
}

func (s *LockingStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	release, err := s.locks.Acquire(ctx, sessionID, s.holder, 0)
	if err != nil {
		return err
	}
	defer release()
	return s.Store.AppendMessage(ctx, sessionID, msg)
}

// WithLock runs fn while holding sessionID's write lock, for compound
// operations (e.g. append-assistant-message-then-persist-tool-calls) that
// need to appear atomic to other callers of this store.
func (s *LockingStore) WithLock(ctx context.Context, sessionID string, fn func(Store) error) error {
	release, err := s.locks.Acquire(ctx, sessionID, s.holder, 0)
	if err != nil {
		return err
	}
	defer release()
	return fn(s.Store)
}
