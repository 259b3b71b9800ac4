package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedStripsSecrets(t *testing.T) {
	i := NewIdentity("  Learner@Example.GOV ")
	i.PasswordHash = "$2a$10$hash"
	i.TwoFactorSecret = "JBSWY3DPEHPK3PXP"

	s := i.Sanitized()
	assert.Empty(t, s.PasswordHash)
	assert.Empty(t, s.TwoFactorSecret)
	assert.Equal(t, "learner@example.gov", s.Email)
	// original untouched
	assert.NotEmpty(t, i.PasswordHash)
}

func TestProfileProjection(t *testing.T) {
	now := time.Now()
	i := Identity{
		Email:        "coach@example.gov",
		Role:         RoleInstructor,
		Status:       StatusActive,
		Organization: "DOE",
		Clearance:    ClearanceSecret,
		PasswordHash: "secret",
		LastLoginAt:  &now,
	}
	p := i.Profile()
	assert.Equal(t, i.Email, p.Email)
	assert.Equal(t, RoleInstructor, p.Role)
	assert.Equal(t, "DOE", p.Organization)
	assert.Equal(t, ClearanceSecret, p.Clearance)
	assert.Equal(t, &now, p.LastLoginAt)
}

func TestIsLocked(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, Identity{}.IsLocked(now))
	assert.True(t, Identity{LockedUntil: &future}.IsLocked(now))
	assert.False(t, Identity{LockedUntil: &past}.IsLocked(now))
}

func TestClearanceRank(t *testing.T) {
	order := []Clearance{ClearancePublic, ClearanceConfidential, ClearanceSecret, ClearanceTopSecret}
	for i, c := range order {
		r, ok := c.Rank()
		assert.True(t, ok)
		assert.Equal(t, i, r)
	}
	_, ok := Clearance("cosmic").Rank()
	assert.False(t, ok)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleContractingOfficerRepresentative.Valid())
	assert.False(t, Role("root").Valid())
}
