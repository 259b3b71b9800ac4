// Package authz holds the authorization predicates downstream handlers use
// to gate access on an authenticated identity.
//
// Every predicate is pure. The Check variants return
// INSUFFICIENT_PERMISSIONS for role, ownership and organization failures and
// INSUFFICIENT_CLEARANCE for clearance failures.
package authz

import (
	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

const (
	// unknownHolderRank makes an unrecognised held clearance insufficient
	// for every requirement.
	unknownHolderRank = -1
	// unknownRequirementRank makes an unrecognised requirement impossible
	// to satisfy.
	unknownRequirementRank = 999
)

// HasRole reports whether the identity holds one of the allowed roles.
func HasRole(i identity.Identity, allowed ...identity.Role) bool {
	for _, r := range allowed {
		if i.Role == r {
			return true
		}
	}
	return false
}

// HasClearance reports whether the identity's clearance is at least required.
func HasClearance(i identity.Identity, required identity.Clearance) bool {
	held, ok := i.Clearance.Rank()
	if !ok {
		held = unknownHolderRank
	}
	need, ok := required.Rank()
	if !ok {
		need = unknownRequirementRank
	}
	return held >= need
}

// IsAdmin reports whether the identity is an admin or super admin.
func IsAdmin(i identity.Identity) bool {
	return HasRole(i, identity.RoleAdmin, identity.RoleSuperAdmin)
}

// IsSelfOrAdmin reports whether the identity is target itself or an admin.
func IsSelfOrAdmin(i identity.Identity, target uuid.UUID) bool {
	return IsAdmin(i) || (i.ID != uuid.Nil && i.ID == target)
}

// InOrganization reports whether the identity belongs to one of allowed. An
// identity without an organization never matches.
func InOrganization(i identity.Identity, allowed ...string) bool {
	if i.Organization == "" {
		return false
	}
	for _, org := range allowed {
		if org != "" && org == i.Organization {
			return true
		}
	}
	return false
}

func CheckRole(i identity.Identity, allowed ...identity.Role) error {
	if HasRole(i, allowed...) {
		return nil
	}
	roles := make([]string, len(allowed))
	for n, r := range allowed {
		roles[n] = string(r)
	}
	return apperrors.InsufficientPermissions("role not permitted").WithDetail("allowed_roles", roles)
}

func CheckClearance(i identity.Identity, required identity.Clearance) error {
	if HasClearance(i, required) {
		return nil
	}
	return apperrors.InsufficientClearance(string(required))
}

func CheckSelfOrAdmin(i identity.Identity, target uuid.UUID) error {
	if IsSelfOrAdmin(i, target) {
		return nil
	}
	return apperrors.InsufficientPermissions("access limited to the account owner or an administrator")
}

func CheckOrganization(i identity.Identity, allowed ...string) error {
	if InOrganization(i, allowed...) {
		return nil
	}
	return apperrors.InsufficientPermissions("organization not permitted")
}
