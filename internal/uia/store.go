package uia

import (
	"context"
	"time"
)

// Session is the server-held record of one in-progress registration attempt.
type Session struct {
	ID        string
	Completed []StageType
	CreatedAt time.Time
}

// Has reports whether the stage has already been completed for this session.
func (s *Session) Has(stage StageType) bool {
	for _, done := range s.Completed {
		if done == stage {
			return true
		}
	}
	return false
}

// SessionStore persists in-progress sessions. Implementations must provide
// per-session atomicity: two concurrent CompleteStage calls for one session
// may interleave but must both land, never partially.
//
// Get returns sentinel.ErrNotFound for unknown ids and sentinel.ErrExpired
// for sessions past their deadline; the engine treats both as NotStarted.
type SessionStore interface {
	Create(ctx context.Context, ttl time.Duration) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	CompleteStage(ctx context.Context, id string, stage StageType) (*Session, error)
	Delete(ctx context.Context, id string) error
}
