package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/response"
)

// guard builds middleware that runs check against the request's identity.
// It must be mounted behind the strategy dispatcher.
func guard(name string, check func(r *http.Request, i identity.Identity) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.FromContext(r.Context())
			if !ok {
				response.Error(w, r, apperrors.New(apperrors.ErrCodeInvalidToken, "authentication required"))
				return
			}
			if err := check(r, user.Identity); err != nil {
				slog.Warn("Authorization denied", "check", name, "user", user, "path", r.URL.Path)
				response.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return guard("role", func(_ *http.Request, i identity.Identity) error {
		return CheckRole(i, roles...)
	})
}

func RequireClearance(required identity.Clearance) func(http.Handler) http.Handler {
	return guard("clearance", func(_ *http.Request, i identity.Identity) error {
		return CheckClearance(i, required)
	})
}

func RequireOrganization(orgs ...string) func(http.Handler) http.Handler {
	return guard("organization", func(_ *http.Request, i identity.Identity) error {
		return CheckOrganization(i, orgs...)
	})
}

// RequireSelfOrAdmin compares the identity with the UUID in the named chi
// URL parameter.
func RequireSelfOrAdmin(param string) func(http.Handler) http.Handler {
	return guard("self_or_admin", func(r *http.Request, i identity.Identity) error {
		target, err := uuid.Parse(chi.URLParam(r, param))
		if err != nil {
			if IsAdmin(i) {
				return nil
			}
			return apperrors.InsufficientPermissions("access limited to the account owner or an administrator")
		}
		return CheckSelfOrAdmin(i, target)
	})
}
