package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// SessionRegistry keeps operator sessions for the lifetime of the process.
type SessionRegistry struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*domain.Session),
	}
}

func (r *SessionRegistry) Open(settings domain.Settings) *domain.Session {
	session := domain.NewSession(uuid.NewString(), settings, r.now())
	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()
	return session
}

func (r *SessionRegistry) Get(id string) (*domain.Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("session %q", id))
	}
	return session, nil
}

func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
