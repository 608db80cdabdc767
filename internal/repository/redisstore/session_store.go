package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop_service/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ domain.SessionStore = (*SessionStore)(nil)

const sessionPrefix = "shop:session:"

type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("could not store session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, token string) (string, error) {
	userID, err := s.client.Get(ctx, sessionPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrUnauthorized
		}
		return "", fmt.Errorf("could not read session: %w", err)
	}
	return userID, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}
	return nil
}
