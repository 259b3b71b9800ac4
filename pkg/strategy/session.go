package strategy

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/sessions"
)

// SessionLoader loads and slides a session.
type SessionLoader interface {
	Load(ctx context.Context, id string) (*sessions.Session, error)
}

// SessionStrategy authenticates with the session cookie.
type SessionStrategy struct {
	store    SessionLoader
	resolver *Resolver
}

func NewSessionStrategy(store SessionLoader, resolver *Resolver) *SessionStrategy {
	return &SessionStrategy{store: store, resolver: resolver}
}

func (s *SessionStrategy) Name() string { return Session }

func (s *SessionStrategy) Authenticate(r *http.Request) Result {
	id, ok := sessions.FromRequest(r)
	if !ok {
		return Skipped()
	}
	sess, err := s.store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return Failed(apperrors.New(apperrors.ErrCodeInvalidToken, "session expired or unknown"))
		}
		return Failed(err)
	}
	i, err := s.resolver.Resolve(r.Context(), sess.IdentityID)
	if err != nil {
		return Failed(err)
	}
	res := Succeeded(i)
	res.SessionID = sess.ID
	return res
}
