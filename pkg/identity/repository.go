package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("identity not found")

// Repository is the credential store. Implementations must make
// RegisterFailedLogin and UpsertFederated atomic per identity.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByID(ctx context.Context, id uuid.UUID) (Identity, error)

	// Create inserts a new identity. A taken email yields a
	// DUPLICATE_RESOURCE error.
	Create(ctx context.Context, identity Identity) (Identity, error)

	// UpsertFederated creates an active, verified, default-role identity for
	// an unknown email or fills in blank-safe profile updates for a known
	// one, in a single step. created reports which happened.
	UpsertFederated(ctx context.Context, profile FederatedProfile, now time.Time) (identity Identity, created bool, err error)

	// RegisterFailedLogin increments the failure counter and, once it
	// reaches threshold, sets the lockout expiry to now+lockFor. An expired
	// lock restarts the count.
	RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (FailedLoginResult, error)

	// RecordSuccessfulLogin clears the failure counter and lock and stamps
	// last-login and last-active.
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error

	// UpdatePassword replaces the digest and clears any lockout.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error

	// MarkEmailVerified sets the verified flag and activates identities
	// pending verification.
	MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) (Identity, error)

	SetTwoFactor(ctx context.Context, id uuid.UUID, secret string, enabled bool, now time.Time) error
}
