package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

// InMemoryRepository implements Repository using in-memory storage. All
// mutations happen under one mutex, which makes the counter update and the
// federated upsert atomic.
type InMemoryRepository struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]Identity
	byEmail    map[string]uuid.UUID
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		identities: make(map[uuid.UUID]Identity),
		byEmail:    make(map[string]uuid.UUID),
	}
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return r.identities[id], nil
}

func (r *InMemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, identity Identity) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity.Email = NormalizeEmail(identity.Email)
	if _, taken := r.byEmail[identity.Email]; taken {
		return Identity{}, apperrors.DuplicateResource("identity with this email")
	}
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	r.identities[identity.ID] = identity
	r.byEmail[identity.Email] = identity.ID
	return identity, nil
}

func (r *InMemoryRepository) UpsertFederated(ctx context.Context, profile FederatedProfile, now time.Time) (Identity, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := NormalizeEmail(profile.Email)
	if id, ok := r.byEmail[email]; ok {
		identity := r.identities[id]
		mergeProfile(&identity, profile)
		identity.LastLoginAt = &now
		identity.LastActiveAt = &now
		identity.UpdatedAt = now
		r.identities[id] = identity
		return identity, false, nil
	}

	identity := Identity{
		ID:            uuid.New(),
		Email:         email,
		Role:          DefaultRole,
		Status:        StatusActive,
		Clearance:     ClearancePublic,
		EmailVerified: true,
		LastLoginAt:   &now,
		LastActiveAt:  &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	mergeProfile(&identity, profile)
	r.identities[identity.ID] = identity
	r.byEmail[email] = identity.ID
	return identity, true, nil
}

// mergeProfile copies non-empty incoming attributes onto identity.
func mergeProfile(identity *Identity, p FederatedProfile) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&identity.FirstName, p.FirstName)
	set(&identity.LastName, p.LastName)
	set(&identity.Organization, p.Organization)
	set(&identity.Department, p.Department)
	set(&identity.JobTitle, p.JobTitle)
}

func (r *InMemoryRepository) RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (FailedLoginResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[id]
	if !ok {
		return FailedLoginResult{}, ErrNotFound
	}

	switch {
	case identity.IsLocked(now):
		identity.FailedLoginAttempts++
	case identity.LockedUntil != nil:
		// previous lock has elapsed
		identity.FailedLoginAttempts = 1
		identity.LockedUntil = nil
	default:
		identity.FailedLoginAttempts++
	}
	if identity.LockedUntil == nil && identity.FailedLoginAttempts >= threshold {
		until := now.Add(lockFor)
		identity.LockedUntil = &until
	}
	identity.UpdatedAt = now
	r.identities[id] = identity

	return FailedLoginResult{Attempts: identity.FailedLoginAttempts, LockedUntil: identity.LockedUntil}, nil
}

func (r *InMemoryRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.update(id, func(identity *Identity) {
		identity.FailedLoginAttempts = 0
		identity.LockedUntil = nil
		identity.LastLoginAt = &now
		identity.LastActiveAt = &now
		identity.UpdatedAt = now
	})
}

func (r *InMemoryRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error {
	return r.update(id, func(identity *Identity) {
		identity.PasswordHash = passwordHash
		identity.FailedLoginAttempts = 0
		identity.LockedUntil = nil
		identity.UpdatedAt = now
	})
}

func (r *InMemoryRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) (Identity, error) {
	var out Identity
	err := r.update(id, func(identity *Identity) {
		identity.EmailVerified = true
		if identity.Status == StatusPendingVerification {
			identity.Status = StatusActive
		}
		identity.UpdatedAt = now
		out = *identity
	})
	return out, err
}

func (r *InMemoryRepository) SetTwoFactor(ctx context.Context, id uuid.UUID, secret string, enabled bool, now time.Time) error {
	return r.update(id, func(identity *Identity) {
		identity.TwoFactorSecret = secret
		identity.TwoFactorEnabled = enabled
		identity.UpdatedAt = now
	})
}

func (r *InMemoryRepository) update(id uuid.UUID, fn func(*Identity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[id]
	if !ok {
		return ErrNotFound
	}
	fn(&identity)
	r.identities[id] = identity
	return nil
}
