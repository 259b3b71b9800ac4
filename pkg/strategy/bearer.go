package strategy

import (
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
)

// TokenVerifier verifies signed tokens.
type TokenVerifier interface {
	Verify(token string, expected tokengenerator.TokenType) (*tokengenerator.Claims, error)
}

// BearerStrategy authenticates with an access token in the Authorization
// header, then re-checks that the identity is still active and unlocked.
// Role, organization and clearance are taken from the token claims.
type BearerStrategy struct {
	tokens   TokenVerifier
	resolver *Resolver
}

func NewBearerStrategy(tokens TokenVerifier, resolver *Resolver) *BearerStrategy {
	return &BearerStrategy{tokens: tokens, resolver: resolver}
}

func (s *BearerStrategy) Name() string { return Bearer }

func (s *BearerStrategy) Authenticate(r *http.Request) Result {
	if r.Header.Get("Authorization") == "" {
		return Skipped()
	}
	token := jwtauth.TokenFromHeader(r)
	if token == "" {
		return Failed(apperrors.New(apperrors.ErrCodeInvalidToken, "malformed authorization header"))
	}
	claims, err := s.tokens.Verify(token, tokengenerator.AccessToken)
	if err != nil {
		return Failed(err)
	}
	id, err := claims.IdentityID()
	if err != nil {
		return Failed(apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "invalid token subject"))
	}
	i, err := s.resolver.Resolve(r.Context(), id)
	if err != nil {
		return Failed(err)
	}
	// Authorization attributes come from the token until it is refreshed.
	i.Role = identity.Role(claims.Role)
	i.Organization = claims.Organization
	i.Clearance = identity.Clearance(claims.Clearance)
	return Succeeded(i)
}
