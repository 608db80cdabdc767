package memory

import (
	"context"
	"sync"
	"time"

	"shop_service/internal/domain"
)

var _ domain.SessionStore = (*SessionStore)(nil)

type session struct {
	userID    string
	expiresAt time.Time
}

// SessionStore is the in-process fallback used when no Redis is configured.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session),
		now:      time.Now,
	}
}

func (s *SessionStore) SaveSession(_ context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return "", domain.ErrUnauthorized
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return "", domain.ErrUnauthorized
	}
	return sess.userID, nil
}

func (s *SessionStore) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
