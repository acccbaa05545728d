package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aet-hub/aet-hub/internal/apperr"
	domain "github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
)

const password = "Str0ng!Passphrase"

func TestCreateUserDefaultsAndNormalizes(t *testing.T) {
	svc := NewService(memory.NewStore().Users(), zerolog.Nop())
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateInput{Username: "Carrier.One", Password: password, Email: " Ops@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "carrier.one", u.Username)
	assert.Equal(t, "ops@example.com", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.Equal(t, domain.StatusActive, u.Status)
	assert.True(t, domain.VerifyPassword(u.PasswordHash, password))

	_, err = svc.CreateUser(ctx, CreateInput{Username: "carrier.one", Password: password})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}

func TestCreateUserRejectsWeakInput(t *testing.T) {
	svc := NewService(memory.NewStore().Users(), zerolog.Nop())
	ctx := context.Background()

	cases := []CreateInput{
		{Username: "ab", Password: password},
		{Username: "operator", Password: "short"},
		{Username: "operator", Password: "Operator!12345"},
		{Username: "operator", Password: password, Role: "DRIVER"},
	}
	for _, in := range cases {
		_, err := svc.CreateUser(ctx, in)
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation), "input %+v", in)
	}
}

func TestUpdateUserAndPassword(t *testing.T) {
	svc := NewService(memory.NewStore().Users(), zerolog.Nop())
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateInput{Username: "operator", Password: password})
	require.NoError(t, err)

	role := domain.RoleOperational
	status := domain.StatusDisabled
	updated, err := svc.UpdateUser(ctx, u.UserID, UpdateInput{Role: &role, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperational, updated.Role)
	assert.Equal(t, domain.StatusDisabled, updated.Status)

	require.NoError(t, svc.SetPassword(ctx, u.UserID, "An0ther!Secret"))
	got, err := svc.GetUser(ctx, u.UserID)
	require.NoError(t, err)
	assert.True(t, domain.VerifyPassword(got.PasswordHash, "An0ther!Secret"))

	_, err = svc.GetUser(ctx, uuid.New())
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}
