package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// StoreConfig holds configuration for the session store.
type StoreConfig struct {
	// TTL evicts sessions idle for longer (default: DefaultSessionTTL).
	TTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// Store keeps sessions in memory, keyed by a random UUID.
type Store struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		ttl:      ttl,
		now:      now,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new idle session.
func (s *Store) Create() *Session {
	session := NewSession(uuid.NewString(), s.now)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	return session
}

// Get returns the session with id and marks it as in use.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Touch()
	return session, nil
}

// Delete removes a session. Writes from a fetch still running for it are
// discarded with the session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Reset()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions that have been inactive for longer than the TTL.
// Sessions still fetching are kept.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, session := range s.sessions {
		if session.State() == Fetching {
			continue
		}
		if now.Sub(session.LastActive()) > s.ttl {
			delete(s.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Debug().
			Int("evicted", evicted).
			Int("remaining", len(s.sessions)).
			Msg("swept idle sessions")
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}
