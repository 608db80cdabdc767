package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

const userColumns = `id, username, full_name, email, password_hash, role, is_active, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
        INSERT INTO users (id, username, full_name, email, password_hash, role, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING ` + userColumns
	created, err := scanUser(s.q.QueryRowContext(ctx, query, id, user.Username, user.FullName,
		user.Email, user.PasswordHash, user.Role, user.IsActive))
	if err != nil {
		if pqCode(err) == "23505" {
			s.log.Warnf("Repository: Attempted to create user with duplicate email: %s", user.Email)
			return nil, fmt.Errorf("%w: email '%s'", domain.ErrUserExists, user.Email)
		}
		s.log.Errorf("Repository: Failed to create user %s: %v", user.Email, err)
		return nil, fmt.Errorf("could not create user: %w", err)
	}
	return created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (*domain.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("could not retrieve user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE TRUE`
	args := []interface{}{}
	if filter.Role != "" {
		args = append(args, filter.Role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active"
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.Errorf("Repository: Failed to list users: %v", err)
		return nil, fmt.Errorf("could not list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	query := `
        UPDATE users SET
            username  = COALESCE($2, username),
            full_name = COALESCE($3, full_name),
            role      = COALESCE($4, role),
            is_active = COALESCE($5, is_active)
        WHERE id = $1
        RETURNING ` + userColumns
	var role *string
	if update.Role != nil {
		r := string(*update.Role)
		role = &r
	}
	u, err := scanUser(s.q.QueryRowContext(ctx, query, id, update.Username, update.FullName, role, update.IsActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		s.log.Errorf("Repository: Failed to update user %s: %v", id, err)
		return nil, fmt.Errorf("could not update user: %w", err)
	}
	return u, nil
}
