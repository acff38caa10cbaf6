package uia

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearth/pkg/sentinel"
)

type memorySession struct {
	session   Session
	expiresAt time.Time
}

// InMemorySessionStore keeps sessions in a mutex-guarded map. Expiry is lazy
// on access plus an optional background sweep so abandoned attempts don't
// grow memory unbounded.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*memorySession)}
}

func (s *InMemorySessionStore) Create(_ context.Context, ttl time.Duration) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry := &memorySession{
		session:   Session{ID: uuid.NewString(), CreatedAt: now},
		expiresAt: now.Add(ttl),
	}
	s.sessions[entry.session.ID] = entry
	out := cloneSession(entry.session)
	return &out, nil
}

func (s *InMemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.locked(id)
	if err != nil {
		return nil, err
	}
	out := cloneSession(entry.session)
	return &out, nil
}

func (s *InMemorySessionStore) CompleteStage(_ context.Context, id string, stage StageType) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.locked(id)
	if err != nil {
		return nil, err
	}
	if !entry.session.Has(stage) {
		entry.session.Completed = append(entry.session.Completed, stage)
	}
	out := cloneSession(entry.session)
	return &out, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// locked resolves id under s.mu, evicting it if expired.
func (s *InMemorySessionStore) locked(id string) (*memorySession, error) {
	entry, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, sentinel.ErrExpired
	}
	return entry, nil
}

// SweepExpired removes all sessions past their deadline and reports how many
// were evicted.
func (s *InMemorySessionStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted int
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs periodic eviction of expired sessions until ctx is
// cancelled.
func (s *InMemorySessionStore) StartSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepExpired(time.Now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func cloneSession(in Session) Session {
	out := in
	out.Completed = append([]StageType(nil), in.Completed...)
	return out
}
