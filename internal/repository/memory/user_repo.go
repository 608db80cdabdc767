package memory

import (
	"context"
	"sort"
	"strings"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	defer s.wlock(ctx)()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, domain.ErrUserExists
		}
	}
	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	s.onRollback(ctx, func() { delete(s.users, u.ID) })
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer s.rlock(ctx)()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	defer s.rlock(ctx)()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	if err := checkCtx(ctx, "list users"); err != nil {
		return nil, err
	}
	defer s.rlock(ctx)()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	defer s.wlock(ctx)()

	prev, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := prev
	update.Apply(&u)
	s.users[id] = u
	s.onRollback(ctx, func() { s.users[id] = prev })
	return &u, nil
}
