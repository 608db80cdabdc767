package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	FullName string `json:"full_name"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserUpdate is an admin edit of an account; nil fields are left untouched.
type UserUpdate struct {
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	Role     *Role   `json:"role"`
	IsActive *bool   `json:"is_active"`
}

func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.FullName == nil && u.Role == nil && u.IsActive == nil
}

func (u UserUpdate) Apply(user *User) {
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.FullName != nil {
		user.FullName = *u.FullName
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.IsActive != nil {
		user.IsActive = *u.IsActive
	}
}

type UserFilter struct {
	Role       Role
	ActiveOnly bool
	Limit      int
	Offset     int
}

func IsValidRole(role Role) bool {
	return role == RoleCustomer || role == RoleAdmin
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	// ListUsers returns accounts oldest first.
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
}

// SessionStore maps opaque tokens to user ids.
type SessionStore interface {
	SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error
}

type UserUseCase interface {
	RegisterUser(ctx context.Context, req RegisterRequest) (*User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*AuthResponse, error)
	ResolveToken(ctx context.Context, token string) (*User, error)
	Logout(ctx context.Context, token string) error
	GetUserProfile(ctx context.Context, id string) (*UserProfile, error)
	EnsureAdmin(ctx context.Context, email, password string) error
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	UpdateUser(ctx context.Context, actorID, id string, update UserUpdate) (*User, error)
	DeactivateUser(ctx context.Context, actorID, id string) error
}
