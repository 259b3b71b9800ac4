// Package auth carries the verified identity of a request through its
// context.
package auth

import (
	"context"
	"log/slog"

	"github.com/tendant/lms-auth/pkg/identity"
)

// AuthUser is the authenticated principal attached to a request. Identity
// is sanitized and was re-read from the credential store for this request.
type AuthUser struct {
	Identity  identity.Identity
	Strategy  string
	SessionID string
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.Identity.ID.String()),
		slog.String("role", string(u.Identity.Role)),
		slog.String("strategy", u.Strategy),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "lms-auth context value " + k.name
}

var AuthUserKey = &contextKey{"AuthUser"}

func WithAuthUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, u)
}

func FromContext(ctx context.Context) (*AuthUser, bool) {
	u, ok := ctx.Value(AuthUserKey).(*AuthUser)
	return u, ok && u != nil
}
