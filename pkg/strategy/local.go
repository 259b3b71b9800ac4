package strategy

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

// PasswordAuthenticator checks an email and password.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (identity.Identity, error)
}

// CodeVerifier checks a TOTP code for an identity.
type CodeVerifier interface {
	Verify(ctx context.Context, id uuid.UUID, code string) error
}

// Credentials is the JSON body read by LocalStrategy.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Code is the TOTP code, required once two-factor is enabled.
	Code string `json:"code,omitempty"`
}

// LocalStrategy authenticates with an email and password in the JSON body.
type LocalStrategy struct {
	auth  PasswordAuthenticator
	twofa CodeVerifier
}

// NewLocalStrategy builds the strategy. twofa may be nil, in which case
// codes are never asked for.
func NewLocalStrategy(auth PasswordAuthenticator, twofa CodeVerifier) *LocalStrategy {
	return &LocalStrategy{auth: auth, twofa: twofa}
}

func (s *LocalStrategy) Name() string { return Local }

func (s *LocalStrategy) Authenticate(r *http.Request) Result {
	var c Credentials
	if err := render.DecodeJSON(r.Body, &c); err != nil {
		return Failed(apperrors.ValidationFailed("request body must be a JSON object", nil))
	}
	i, err := s.auth.Authenticate(r.Context(), c.Email, c.Password)
	if err != nil {
		return Failed(err)
	}
	if i.TwoFactorEnabled && s.twofa != nil {
		if c.Code == "" {
			return Failed(apperrors.New(apperrors.ErrCodeInvalidCredentials, "two-factor code required").
				WithDetail("two_factor_required", true))
		}
		if err := s.twofa.Verify(r.Context(), i.ID, c.Code); err != nil {
			return Failed(err)
		}
	}
	return Succeeded(i)
}
