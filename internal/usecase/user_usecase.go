package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"shop_service/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var _ domain.UserUseCase = (*userUseCase)(nil)

type userUseCase struct {
	userRepo   domain.UserRepository
	sessions   domain.SessionStore
	sessionTTL time.Duration
	bcryptCost int
	log        *logrus.Logger
}

type UserOption func(*userUseCase)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) UserOption {
	return func(uc *userUseCase) { uc.bcryptCost = cost }
}

func NewUserUseCase(repo domain.UserRepository, sessions domain.SessionStore, sessionTTL time.Duration, logger *logrus.Logger, opts ...UserOption) domain.UserUseCase {
	uc := &userUseCase{
		userRepo:   repo,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		log:        logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *userUseCase) RegisterUser(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	return uc.register(ctx, req, domain.RoleCustomer)
}

func (uc *userUseCase) register(ctx context.Context, req domain.RegisterRequest, role domain.Role) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	uc.log.Infof("Use Case: Attempting registration for email: %s", email)

	if username == "" {
		uc.log.Warn("Use Case: Registration failed - empty username")
		return nil, domain.InvalidInput("username cannot be empty")
	}
	if !isValidEmail(email) {
		uc.log.Warnf("Use Case: Registration failed - invalid email format: %s", email)
		return nil, domain.InvalidInput("invalid email format")
	}
	if err := validatePassword(req.Password); err != nil {
		uc.log.Warnf("Use Case: Registration failed - password validation error: %v", err)
		return nil, domain.InvalidInput("%s", err.Error())
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), uc.bcryptCost)
	if err != nil {
		uc.log.Errorf("Use Case: Failed to hash password for %s: %v", email, err)
		return nil, fmt.Errorf("internal error processing password: %w", err)
	}

	created, err := uc.userRepo.CreateUser(ctx, &domain.User{
		Username:     username,
		FullName:     strings.TrimSpace(req.FullName),
		Email:        email,
		PasswordHash: string(hashed),
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to create user %s: %v", email, err)
		return nil, domain.NewPersistenceError("create user", err)
	}

	uc.log.Infof("Use Case: User registered successfully. ID: %s, Email: %s", created.ID, created.Email)
	return created, nil
}

func (uc *userUseCase) AuthenticateUser(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	uc.log.Infof("Use Case: Attempting authentication for email: %s", email)

	if !isValidEmail(email) || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := uc.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			uc.log.Warnf("Use Case: Auth failed - user not found: %s", email)
			return nil, domain.ErrInvalidCredentials
		}
		uc.log.Errorf("Use Case: Error retrieving user %s during auth: %v", email, err)
		return nil, domain.NewPersistenceError("get user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			uc.log.Warnf("Use Case: Auth failed - incorrect password for user %s (ID: %s)", email, user.ID)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("internal error during authentication: %w", err)
	}
	if !user.IsActive {
		uc.log.Warnf("Use Case: Auth failed - user %s is inactive", user.ID)
		return nil, domain.ErrForbidden
	}

	token := uuid.NewString()
	if err := uc.sessions.SaveSession(ctx, token, user.ID, uc.sessionTTL); err != nil {
		uc.log.Errorf("Use Case: Failed to store session for user %s: %v", user.ID, err)
		return nil, domain.NewPersistenceError("save session", err)
	}
	uc.log.Infof("Use Case: Authentication successful for user %s (ID: %s)", email, user.ID)

	return &domain.AuthResponse{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(uc.sessionTTL).UTC(),
	}, nil
}

func (uc *userUseCase) ResolveToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	userID, err := uc.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		return nil, domain.NewPersistenceError("get session", err)
	}
	user, err := uc.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, domain.NewPersistenceError("get user", err)
	}
	if !user.IsActive {
		return nil, domain.ErrForbidden
	}
	return user, nil
}

func (uc *userUseCase) Logout(ctx context.Context, token string) error {
	if err := uc.sessions.DeleteSession(ctx, token); err != nil {
		return domain.NewPersistenceError("delete session", err)
	}
	return nil
}

func (uc *userUseCase) GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	if id == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	user, err := uc.userRepo.GetUserByID(ctx, id)
	if err != nil {
		uc.log.Warnf("Use Case: Repository failed to get user profile for ID %s: %v", id, err)
		return nil, domain.NewPersistenceError("get user", err)
	}
	return &domain.UserProfile{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Email:    user.Email,
		Role:     user.Role,
	}, nil
}

// EnsureAdmin creates an admin account for email unless one already exists.
func (uc *userUseCase) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := uc.userRepo.GetUserByEmail(ctx, email)
	if err == nil {
		uc.log.Infof("Use Case: Admin account %s already present", email)
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.NewPersistenceError("get user", err)
	}

	username, _, _ := strings.Cut(email, "@")
	if _, err := uc.register(ctx, domain.RegisterRequest{Username: username, Email: email, Password: password}, domain.RoleAdmin); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil
		}
		return err
	}
	uc.log.Infof("Use Case: Admin account %s created", email)
	return nil
}

func (uc *userUseCase) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	if filter.Role != "" && !domain.IsValidRole(filter.Role) {
		return nil, domain.InvalidInput("unknown role %q", filter.Role)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	users, err := uc.userRepo.ListUsers(ctx, filter)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to list users: %v", err)
		return nil, domain.NewPersistenceError("list users", err)
	}
	uc.log.Infof("Use Case: Listed %d users (role: %q, limit: %d, offset: %d)", len(users), filter.Role, filter.Limit, filter.Offset)
	return users, nil
}

// UpdateUser applies an admin edit. An admin may not demote or deactivate
// their own account, so the shop always keeps the admin making the change.
func (uc *userUseCase) UpdateUser(ctx context.Context, actorID, id string, update domain.UserUpdate) (*domain.User, error) {
	if id == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	if update.IsEmpty() {
		return nil, domain.InvalidInput("no fields provided for update")
	}
	if update.Username != nil {
		trimmed := strings.TrimSpace(*update.Username)
		if trimmed == "" {
			return nil, domain.InvalidInput("username cannot be empty")
		}
		update.Username = &trimmed
	}
	if update.FullName != nil {
		trimmed := strings.TrimSpace(*update.FullName)
		update.FullName = &trimmed
	}
	if update.Role != nil && !domain.IsValidRole(*update.Role) {
		return nil, domain.InvalidInput("unknown role %q", *update.Role)
	}
	if actorID == id {
		if update.Role != nil && *update.Role != domain.RoleAdmin {
			uc.log.Warnf("Use Case: Admin %s tried to demote themselves", actorID)
			return nil, domain.InvalidInput("admins cannot change their own role")
		}
		if update.IsActive != nil && !*update.IsActive {
			uc.log.Warnf("Use Case: Admin %s tried to deactivate themselves", actorID)
			return nil, domain.InvalidInput("admins cannot deactivate their own account")
		}
	}

	uc.log.Infof("Use Case: Admin %s updating user %s", actorID, id)
	updated, err := uc.userRepo.UpdateUser(ctx, id, update)
	if err != nil {
		uc.log.Errorf("Use Case: Repository failed to update user %s: %v", id, err)
		return nil, domain.NewPersistenceError("update user", err)
	}
	return updated, nil
}

// DeactivateUser blocks the account. Its sessions stop resolving at once.
func (uc *userUseCase) DeactivateUser(ctx context.Context, actorID, id string) error {
	inactive := false
	_, err := uc.UpdateUser(ctx, actorID, id, domain.UserUpdate{IsActive: &inactive})
	return err
}

func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	domainParts := strings.Split(parts[1], ".")
	return len(domainParts) >= 2 && domainParts[0] != "" && domainParts[len(domainParts)-1] != ""
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return errors.New("password must contain at least one digit")
	}
	return nil
}
