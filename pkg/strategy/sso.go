package strategy

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/sso"
)

// AssertionMapper turns a validated assertion into an identity.
type AssertionMapper interface {
	Map(ctx context.Context, a sso.Assertion) (identity.Identity, bool, error)
}

// SSOStrategy authenticates a provider callback. The provider is taken
// from the "provider" URL parameter.
type SSOStrategy struct {
	providers *sso.Registry
	mapper    AssertionMapper
}

func NewSSOStrategy(providers *sso.Registry, mapper AssertionMapper) *SSOStrategy {
	return &SSOStrategy{providers: providers, mapper: mapper}
}

func (s *SSOStrategy) Name() string { return SSO }

func (s *SSOStrategy) Authenticate(r *http.Request) Result {
	name := chi.URLParam(r, "provider")
	p, ok := s.providers.Get(name)
	if !ok {
		return Failed(apperrors.Newf(apperrors.ErrCodeNotFound, "unknown identity provider %q", name))
	}
	a, err := s.providers.Assert(r.Context(), p, r)
	if err != nil {
		return Failed(err)
	}
	i, _, err := s.mapper.Map(r.Context(), a)
	if err != nil {
		return Failed(err)
	}
	return Succeeded(i)
}
