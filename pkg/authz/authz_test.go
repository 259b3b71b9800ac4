package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

var allClearances = []identity.Clearance{
	identity.ClearancePublic,
	identity.ClearanceConfidential,
	identity.ClearanceSecret,
	identity.ClearanceTopSecret,
	"",
	"cosmic",
}

var allRoles = []identity.Role{
	identity.RoleStudent,
	identity.RoleInstructor,
	identity.RoleAdmin,
	identity.RoleSuperAdmin,
	identity.RoleContractingOfficerRepresentative,
}

func rank(c identity.Clearance) int {
	r, ok := c.Rank()
	if !ok {
		return unknownHolderRank
	}
	return r
}

func TestHasClearanceMonotonic(t *testing.T) {
	for _, a := range allClearances {
		for _, b := range allClearances {
			if rank(a) < rank(b) {
				continue
			}
			for _, req := range allClearances {
				if HasClearance(identity.Identity{Clearance: b}, req) {
					assert.True(t, HasClearance(identity.Identity{Clearance: a}, req),
						"holder %q >= %q but fails %q", a, b, req)
				}
			}
		}
	}
}

func TestUnknownClearanceNeverGrants(t *testing.T) {
	for _, c := range allClearances {
		assert.False(t, HasClearance(identity.Identity{Clearance: c}, "cosmic"), c)
		assert.False(t, HasClearance(identity.Identity{Clearance: c}, ""), c)
	}
	assert.False(t, HasClearance(identity.Identity{Clearance: "cosmic"}, identity.ClearancePublic))
	assert.True(t, HasClearance(identity.Identity{Clearance: identity.ClearanceTopSecret}, identity.ClearanceSecret))
}

func TestStudentWithConfidentialNeedsSecret(t *testing.T) {
	student := identity.Identity{Role: identity.RoleStudent, Clearance: identity.ClearanceConfidential}
	err := CheckClearance(student, identity.ClearanceSecret)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientClearance)
	assert.False(t, apperrors.IsCode(err, apperrors.ErrCodeInsufficientPermissions))
}

func TestIsSelfOrAdmin(t *testing.T) {
	target := uuid.New()
	for _, role := range allRoles {
		i := identity.Identity{ID: uuid.New(), Role: role}
		admin := role == identity.RoleAdmin || role == identity.RoleSuperAdmin
		assert.Equal(t, admin, IsSelfOrAdmin(i, target), role)
		assert.True(t, IsSelfOrAdmin(i, i.ID), role)
	}
	assert.ErrorIs(t, CheckSelfOrAdmin(identity.Identity{ID: uuid.New(), Role: identity.RoleStudent}, target),
		apperrors.ErrInsufficientPermissions)
	// the nil id matches nobody
	assert.False(t, IsSelfOrAdmin(identity.Identity{Role: identity.RoleStudent}, uuid.Nil))
}

func TestHasRole(t *testing.T) {
	i := identity.Identity{Role: identity.RoleInstructor}
	assert.True(t, HasRole(i, identity.RoleAdmin, identity.RoleInstructor))
	assert.False(t, HasRole(i, identity.RoleAdmin))
	assert.False(t, HasRole(i))
	assert.ErrorIs(t, CheckRole(i, identity.RoleAdmin), apperrors.ErrInsufficientPermissions)
}

func TestInOrganization(t *testing.T) {
	assert.True(t, InOrganization(identity.Identity{Organization: "DOE"}, "DOD", "DOE"))
	assert.False(t, InOrganization(identity.Identity{Organization: "DOE"}, "DOD"))
	assert.False(t, InOrganization(identity.Identity{}, "", "DOE"))
	assert.ErrorIs(t, CheckOrganization(identity.Identity{}, "DOE"), apperrors.ErrInsufficientPermissions)
}

func serve(user *auth.AuthUser, mw func(http.Handler) http.Handler, path, pattern string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != nil {
				req = req.WithContext(auth.WithAuthUser(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.With(mw).Get(pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddleware(t *testing.T) {
	student := &auth.AuthUser{Identity: identity.Identity{
		ID: uuid.New(), Role: identity.RoleStudent, Clearance: identity.ClearanceConfidential, Organization: "DOE",
	}}
	admin := &auth.AuthUser{Identity: identity.Identity{ID: uuid.New(), Role: identity.RoleAdmin}}

	assert.Equal(t, http.StatusUnauthorized, serve(nil, RequireRole(identity.RoleStudent), "/x", "/x").Code)
	assert.Equal(t, http.StatusNoContent, serve(student, RequireRole(identity.RoleStudent), "/x", "/x").Code)
	assert.Equal(t, http.StatusForbidden, serve(student, RequireRole(identity.RoleAdmin), "/x", "/x").Code)

	rec := serve(student, RequireClearance(identity.ClearanceSecret), "/x", "/x")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeInsufficientClearance))

	assert.Equal(t, http.StatusNoContent, serve(student, RequireOrganization("DOE"), "/x", "/x").Code)

	self := "/users/" + student.Identity.ID.String()
	other := "/users/" + uuid.NewString()
	assert.Equal(t, http.StatusNoContent, serve(student, RequireSelfOrAdmin("id"), self, "/users/{id}").Code)
	assert.Equal(t, http.StatusForbidden, serve(student, RequireSelfOrAdmin("id"), other, "/users/{id}").Code)
	assert.Equal(t, http.StatusNoContent, serve(admin, RequireSelfOrAdmin("id"), other, "/users/{id}").Code)
}
