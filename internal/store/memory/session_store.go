package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
)

// SessionStore implements store.SessionStore in memory. Data is lost on restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
	byUser   map[uuid.UUID]map[uuid.UUID]struct{} // user_id -> session ids
	now      func() time.Time
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]models.Session),
		byUser:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		now:      time.Now,
	}
}

// Create stores a copy of session.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.SessionID] = *session

	ids, ok := s.byUser[session.UserID]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		s.byUser[session.UserID] = ids
	}
	ids[session.SessionID] = struct{}{}
	return nil
}

// Get returns a copy of the session while it is unexpired.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	switch {
	case !ok:
		return nil, store.ErrSessionNotFound
	case s.now().After(session.ExpiresAt):
		return nil, store.ErrSessionExpired
	}
	return &session, nil
}

// UpdateLastUsed touches the session.
func (s *SessionStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	session.LastUsedAt = s.now()
	s.sessions[sessionID] = session
	return nil
}

// Delete removes one session.
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	s.remove(session)
	return nil
}

// DeleteByUser removes every session of the user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byUser[userID]
	for id := range ids {
		delete(s.sessions, id)
	}
	delete(s.byUser, userID)
	return len(ids), nil
}

// DeleteExpired removes sessions past their expiry.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for _, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			s.remove(session)
			deleted++
		}
	}
	return deleted, nil
}

// remove drops session from both indexes. Callers hold the write lock.
func (s *SessionStore) remove(session models.Session) {
	delete(s.sessions, session.SessionID)

	ids := s.byUser[session.UserID]
	delete(ids, session.SessionID)
	if len(ids) == 0 {
		delete(s.byUser, session.UserID)
	}
}
