package sso

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

// Upserter is the part of the credential store the mapper needs.
type Upserter interface {
	UpsertFederated(ctx context.Context, profile identity.FederatedProfile, now time.Time) (identity.Identity, bool, error)
}

type Mapper struct {
	store Upserter
	now   func() time.Time
}

func NewMapper(store Upserter) *Mapper {
	return &Mapper{store: store, now: time.Now}
}

// WithClock replaces the time source. Used in tests.
func (m *Mapper) WithClock(now func() time.Time) *Mapper {
	m.now = now
	return m
}

// Map creates or updates the identity behind an assertion and returns it
// sanitized. created reports whether the identity is new.
func (m *Mapper) Map(ctx context.Context, a Assertion) (identity.Identity, bool, error) {
	profile := a.Profile()
	if profile.Email == "" {
		return identity.Identity{}, false, apperrors.RequiredFieldMissing("email")
	}

	i, created, err := m.store.UpsertFederated(ctx, profile, m.now().UTC())
	if err != nil {
		return identity.Identity{}, false, apperrors.Classify(err)
	}
	if created {
		slog.Info("Identity created from SSO assertion", "identity", i, "provider", a.Provider)
	}
	if !i.IsActive() {
		slog.Warn("SSO login for inactive identity", "identity", i, "provider", a.Provider)
		return identity.Identity{}, false, apperrors.AccountNotActive(string(i.Status))
	}
	return i.Sanitized(), created, nil
}
