package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store defines operations for session state.
//
// Get on an unknown ID returns ErrNotFound; callers must treat that as "the
// user has to re-initiate a session", never as a retryable transport error.
// UpdateWatermark is safe to call concurrently for different sessions; updates
// for the same session are expected to be sequential (one in-flight turn per
// session, serialized by the chat client).
type Store interface {
	Create(ctx context.Context, sess Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	UpdateWatermark(ctx context.Context, sessionID, watermark string) error
}

// MemoryStore implements Store with an in-process map. Suitable for
// single-instance deployments; use FileStore when sessions must survive
// a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session

	janitorInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

const defaultJanitorInterval = time.Minute

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:        make(map[string]Session),
		janitorInterval: defaultJanitorInterval,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the eviction janitor, which drops sessions whose remote
// token lifetime has elapsed. Without it the map grows without bound.
func (s *MemoryStore) Start() {
	go s.janitorLoop()
	slog.Info("session janitor started", "interval", s.janitorInterval)
}

// Stop terminates the eviction janitor. Safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) janitorLoop() {
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evictExpired(time.Now())
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted int
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("evicted expired sessions", "count", evicted)
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("create session: empty session ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// UpdateWatermark advances the session's read cursor. Empty watermarks are
// ignored so a poll that returned no cursor can never regress the stored one.
func (s *MemoryStore) UpdateWatermark(ctx context.Context, sessionID, watermark string) error {
	if watermark == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Watermark = watermark
	s.sessions[sessionID] = sess
	return nil
}
