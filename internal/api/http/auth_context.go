package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/domain/user"
)

type authContextKey string

const (
	authUserKey authContextKey = "authUser"
)

// AuthUser represents the authenticated user in context.
type AuthUser struct {
	UserID    uuid.UUID
	Username  string
	Role      user.Role
	SessionID uuid.UUID
}

// Actor converts the authenticated user into the identity passed to services.
func (u AuthUser) Actor() user.Actor {
	return user.Actor{UserID: u.UserID, Username: u.Username, Role: u.Role}
}

func withAuthUser(ctx context.Context, u *AuthUser) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, authUserKey, u)
}

func authUserFromContext(ctx context.Context) *AuthUser {
	val := ctx.Value(authUserKey)
	if v, ok := val.(*AuthUser); ok {
		return v
	}
	return nil
}

// actorFromRequest returns the caller identity. requireAuth guarantees one on every
// protected route.
func actorFromRequest(r *http.Request) user.Actor {
	if u := authUserFromContext(r.Context()); u != nil {
		return u.Actor()
	}
	return user.Actor{}
}
