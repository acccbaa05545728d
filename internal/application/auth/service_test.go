package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aet-hub/aet-hub/internal/apperr"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
)

const password = "Str0ng!Passphrase"

func TestBootstrapLoginLogout(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Users(), store.Sessions(), time.Hour, "boot-secret", zerolog.Nop())

	_, err := svc.Bootstrap(ctx, "wrong", "admin", password, "Admin")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))

	res, err := svc.Bootstrap(ctx, "boot-secret", "Admin", password, "Admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.User.Username)
	assert.Equal(t, user.RoleAdmin, res.User.Role)
	assert.NotEmpty(t, res.Token)

	_, err = svc.Bootstrap(ctx, "boot-secret", "second", password, "Second")
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))

	login, err := svc.Login(ctx, "ADMIN", password, nil, nil)
	require.NoError(t, err)
	u, sess, err := svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.UserID, u.UserID)
	assert.Equal(t, login.Session.SessionID, sess.SessionID)

	require.NoError(t, svc.Logout(ctx, login.Token))
	_, _, err = svc.Authenticate(ctx, login.Token)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Users(), store.Sessions(), time.Hour, "", zerolog.Nop())

	_, err := svc.Bootstrap(ctx, "", "admin", password, "")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))

	_, err = svc.Login(ctx, "ghost", password, nil, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))

	hash, err := user.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, store.Users().Create(ctx, &user.User{Username: "off", PasswordHash: hash, Role: user.RoleUser, Status: user.StatusDisabled}))
	_, err = svc.Login(ctx, "off", password, nil, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
}

func TestAuthenticateExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Users(), store.Sessions(), -time.Minute, "boot", zerolog.Nop())

	res, err := svc.Bootstrap(ctx, "boot", "admin", password, "")
	require.NoError(t, err)
	_, _, err = svc.Authenticate(ctx, res.Token)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
}
