package app

import (
	"context"
	"sync"
	"time"
)

// PendingState tracks a login awaiting its callback. The state value bridges
// the initiating request and the callback request; nothing else correlates the
// two.
type PendingState struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the server-side record behind a session credential. It owns the
// upstream tokens and is never serialized to the client.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	User         Identity  `json:"user"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the key-value abstraction behind pending states and sessions. The
// same protocol logic runs against the in-process implementation in tests and
// a shared store in multi-instance deployments.
//
// ConsumeState must check and delete as a single atomic operation: of two
// concurrent callbacks presenting the same state, at most one may succeed.
type Store interface {
	SavePendingState(ctx context.Context, ps PendingState) error
	ConsumeState(ctx context.Context, state string) (PendingState, bool, error)
	SaveSession(ctx context.Context, sess Session) error
	GetSession(ctx context.Context, id string) (Session, bool, error)
	DeleteSession(ctx context.Context, id string) error
}

// MemoryStore keeps pending states and sessions in process memory under a
// single lock. It does not survive restarts or horizontal scaling; use the
// Redis store for that.
type MemoryStore struct {
	mu       sync.Mutex
	states   map[string]PendingState
	sessions map[string]Session

	stateTTL   time.Duration
	sessionTTL time.Duration
}

// NewMemoryStore constructs the store. TTLs bound memory growth: entries older
// than their TTL are removed by the janitor sweep.
func NewMemoryStore(stateTTL, sessionTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]PendingState),
		sessions:   make(map[string]Session),
		stateTTL:   stateTTL,
		sessionTTL: sessionTTL,
	}
}

// SavePendingState records a login awaiting callback.
func (s *MemoryStore) SavePendingState(_ context.Context, ps PendingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[ps.State] = ps
	return nil
}

// ConsumeState retrieves and removes a pending state in one critical section.
// An absent or expired state reports ok=false; the caller treats unknown and
// already-consumed identically.
func (s *MemoryStore) ConsumeState(_ context.Context, state string) (PendingState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.states[state]
	if !ok {
		return PendingState{}, false, nil
	}
	delete(s.states, state)
	if s.stateTTL > 0 && time.Since(ps.CreatedAt) > s.stateTTL {
		return PendingState{}, false, nil
	}
	return ps, true, nil
}

// SaveSession stores or replaces a session.
func (s *MemoryStore) SaveSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession retrieves a session by ID. Entries past the session TTL are
// removed lazily on read.
func (s *MemoryStore) GetSession(_ context.Context, id string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false, nil
	}
	if s.sessionTTL > 0 && time.Since(sess.CreatedAt) > s.sessionTTL {
		delete(s.sessions, id)
		return Session{}, false, nil
	}
	return sess, true, nil
}

// DeleteSession removes a session. Removing a nonexistent ID is not an error.
func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// StartJanitor launches the periodic sweep removing expired entries. Closing
// stop ends the loop.
func (s *MemoryStore) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = DefaultSweepEvery
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(time.Now())
			case <-stop:
				return
			}
		}
	}()
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateTTL > 0 {
		for k, ps := range s.states {
			if now.Sub(ps.CreatedAt) > s.stateTTL {
				delete(s.states, k)
			}
		}
	}
	if s.sessionTTL > 0 {
		for k, sess := range s.sessions {
			if now.Sub(sess.CreatedAt) > s.sessionTTL {
				delete(s.sessions, k)
			}
		}
	}
}
