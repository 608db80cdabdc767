package usecase

import (
	"context"
	"testing"
	"time"

	"shop_service/internal/domain"
	"shop_service/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupUsers(t *testing.T) domain.UserUseCase {
	t.Helper()
	return NewUserUseCase(memory.NewStore(testLogger()), memory.NewSessionStore(), time.Hour, testLogger(), WithBcryptCost(bcrypt.MinCost))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users := setupUsers(t)

	user, err := users.RegisterUser(ctx, domain.RegisterRequest{
		Username: "alice", FullName: "Alice A", Email: " Alice@Example.com ", Password: "Secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, domain.RoleCustomer, user.Role)
	assert.NotEqual(t, "Secret123", user.PasswordHash)

	_, err = users.RegisterUser(ctx, domain.RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	_, err = users.AuthenticateUser(ctx, "alice@example.com", "wrong-Pass1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = users.AuthenticateUser(ctx, "bob@example.com", "Secret123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	auth, err := users.AuthenticateUser(ctx, "ALICE@example.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, auth.UserID)

	resolved, err := users.ResolveToken(ctx, auth.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	require.NoError(t, users.Logout(ctx, auth.Token))
	_, err = users.ResolveToken(ctx, auth.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	users := setupUsers(t)

	cases := map[string]domain.RegisterRequest{
		"empty username":  {Username: " ", Email: "a@b.io", Password: "Secret123"},
		"bad email":       {Username: "a", Email: "not-an-email", Password: "Secret123"},
		"short password":  {Username: "a", Email: "a@b.io", Password: "Se1"},
		"no upper":        {Username: "a", Email: "a@b.io", Password: "secret123"},
		"no digit":        {Username: "a", Email: "a@b.io", Password: "SecretPass"},
		"no lower letter": {Username: "a", Email: "a@b.io", Password: "SECRET123"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := users.RegisterUser(ctx, req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	users := setupUsers(t)

	require.NoError(t, users.EnsureAdmin(ctx, "root@shop.io", "Admin1234"))
	require.NoError(t, users.EnsureAdmin(ctx, "root@shop.io", "Admin1234"))

	auth, err := users.AuthenticateUser(ctx, "root@shop.io", "Admin1234")
	require.NoError(t, err)
	profile, err := users.GetUserProfile(ctx, auth.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, profile.Role)
	assert.Equal(t, "root", profile.Username)
}

func TestAdminUserManagement(t *testing.T) {
	ctx := context.Background()
	users := setupUsers(t)

	require.NoError(t, users.EnsureAdmin(ctx, "root@shop.io", "Admin1234"))
	adminAuth, err := users.AuthenticateUser(ctx, "root@shop.io", "Admin1234")
	require.NoError(t, err)
	adminID := adminAuth.UserID

	bob, err := users.RegisterUser(ctx, domain.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "Secret123"})
	require.NoError(t, err)
	bobAuth, err := users.AuthenticateUser(ctx, "bob@example.com", "Secret123")
	require.NoError(t, err)

	customers, err := users.ListUsers(ctx, domain.UserFilter{Role: domain.RoleCustomer})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, bob.ID, customers[0].ID)

	_, err = users.ListUsers(ctx, domain.UserFilter{Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	name := "  Bob B  "
	updated, err := users.UpdateUser(ctx, adminID, bob.ID, domain.UserUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Bob B", updated.FullName)

	_, err = users.UpdateUser(ctx, adminID, bob.ID, domain.UserUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	customer := domain.RoleCustomer
	_, err = users.UpdateUser(ctx, adminID, adminID, domain.UserUpdate{Role: &customer})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, users.DeactivateUser(ctx, adminID, adminID), domain.ErrInvalidInput)

	require.NoError(t, users.DeactivateUser(ctx, adminID, bob.ID))
	_, err = users.ResolveToken(ctx, bobAuth.Token)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = users.AuthenticateUser(ctx, "bob@example.com", "Secret123")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.ErrorIs(t, users.DeactivateUser(ctx, adminID, "missing"), domain.ErrUserNotFound)
}
