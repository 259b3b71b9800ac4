package identity

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type Role string

const (
	RoleStudent                          Role = "student"
	RoleInstructor                       Role = "instructor"
	RoleAdmin                            Role = "admin"
	RoleSuperAdmin                       Role = "super_admin"
	RoleContractingOfficerRepresentative Role = "contracting_officer_representative"
)

// DefaultRole is the lowest-privilege role, given to self-registered and
// federated identities.
const DefaultRole = RoleStudent

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin, RoleSuperAdmin, RoleContractingOfficerRepresentative:
		return true
	}
	return false
}

type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
	StatusPendingVerification Status = "pending_verification"
)

// Clearance is an ordered classification level.
type Clearance string

const (
	ClearancePublic       Clearance = "public"
	ClearanceConfidential Clearance = "confidential"
	ClearanceSecret       Clearance = "secret"
	ClearanceTopSecret    Clearance = "top_secret"
)

var clearanceRank = map[Clearance]int{
	ClearancePublic:       0,
	ClearanceConfidential: 1,
	ClearanceSecret:       2,
	ClearanceTopSecret:    3,
}

// Rank returns the position of c in the clearance order and false for an
// unrecognised value.
func (c Clearance) Rank() (int, bool) {
	r, ok := clearanceRank[c]
	return r, ok
}

// Identity is a user account record.
type Identity struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string // empty for SSO-only accounts
	Role                Role
	Status              Status
	Organization        string
	Department          string
	JobTitle            string
	FirstName           string
	LastName            string
	Clearance           Clearance
	FailedLoginAttempts int
	LockedUntil         *time.Time
	TwoFactorSecret     string
	TwoFactorEnabled    bool
	EmailVerified       bool
	LastLoginAt         *time.Time
	LastActiveAt        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NormalizeEmail case-folds and trims an address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (i Identity) IsActive() bool {
	return i.Status == StatusActive
}

// IsLocked reports whether a lockout is in force at now.
func (i Identity) IsLocked(now time.Time) bool {
	return i.LockedUntil != nil && i.LockedUntil.After(now)
}

func (i Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// Sanitized returns a copy without the password digest and 2FA secret.
func (i Identity) Sanitized() Identity {
	i.PasswordHash = ""
	i.TwoFactorSecret = ""
	return i
}

func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", i.ID.String()),
		slog.String("email", i.Email),
		slog.String("role", string(i.Role)),
		slog.String("status", string(i.Status)),
	)
}

// Profile is the public projection of an Identity returned to clients.
type Profile struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Role             Role       `json:"role"`
	Status           Status     `json:"status"`
	Organization     string     `json:"organization,omitempty"`
	Department       string     `json:"department,omitempty"`
	JobTitle         string     `json:"job_title,omitempty"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	Clearance        Clearance  `json:"clearance"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	EmailVerified    bool       `json:"email_verified"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

func (i Identity) Profile() Profile {
	var p Profile
	if err := copier.Copy(&p, &i); err != nil {
		slog.Error("Failed to copy identity profile", "id", i.ID, "err", err)
	}
	return p
}

// FederatedProfile holds the attributes an identity provider vouches for.
type FederatedProfile struct {
	Email        string
	FirstName    string
	LastName     string
	Organization string
	Department   string
	JobTitle     string
}

// FailedLoginResult is the state after a failed attempt has been recorded.
type FailedLoginResult struct {
	Attempts    int
	LockedUntil *time.Time
}

// NewIdentity returns a registration-ready identity with default role,
// public clearance and pending verification status.
func NewIdentity(email string) Identity {
	return Identity{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		Role:      DefaultRole,
		Status:    StatusPendingVerification,
		Clearance: ClearancePublic,
	}
}
