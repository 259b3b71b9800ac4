package strategy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

// IdentityLookup reads identities from the credential store.
type IdentityLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (identity.Identity, error)
}

// Resolver loads the identity behind a token or session and checks that
// it may act: active and not locked. Within one request the store is read
// at most once per identity.
type Resolver struct {
	store IdentityLookup
	now   func() time.Time
}

func NewResolver(store IdentityLookup) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

type cacheEntry struct {
	identity identity.Identity
	err      error
}

type requestCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]cacheEntry
}

type cacheKey struct{}

// WithRequestCache returns a context that memoizes identity lookups.
func WithRequestCache(ctx context.Context) context.Context {
	if _, ok := ctx.Value(cacheKey{}).(*requestCache); ok {
		return ctx
	}
	return context.WithValue(ctx, cacheKey{}, &requestCache{entries: make(map[uuid.UUID]cacheEntry)})
}

func (r *Resolver) lookup(ctx context.Context, id uuid.UUID) (identity.Identity, error) {
	cache, ok := ctx.Value(cacheKey{}).(*requestCache)
	if !ok {
		return r.store.FindByID(ctx, id)
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if e, ok := cache.entries[id]; ok {
		return e.identity, e.err
	}
	i, err := r.store.FindByID(ctx, id)
	cache.entries[id] = cacheEntry{identity: i, err: err}
	return i, err
}

// Resolve returns the identity if it exists, is active and is not locked.
// A missing identity is INVALID_TOKEN: the credential outlived its owner.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) (identity.Identity, error) {
	i, err := r.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Identity{}, apperrors.New(apperrors.ErrCodeInvalidToken, "credential no longer valid")
		}
		return identity.Identity{}, apperrors.Classify(err)
	}
	if !i.IsActive() {
		return identity.Identity{}, apperrors.AccountNotActive(string(i.Status))
	}
	now := r.now()
	if i.IsLocked(now) {
		return identity.Identity{}, apperrors.AccountLocked(*i.LockedUntil, now)
	}
	return i, nil
}
