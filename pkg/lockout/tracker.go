// Package lockout gates local-password authentication after repeated
// failures.
//
// State lives on the identity record (failed-attempt counter and lockout
// expiry). The store performs increment, compare and lock as one atomic
// operation so concurrent failures cannot race past the threshold.
package lockout

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/notification"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// Store is the subset of identity.Repository the tracker needs.
type Store interface {
	RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration, now time.Time) (identity.FailedLoginResult, error)
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error
}

type Tracker struct {
	store     Store
	notifier  notification.Notifier
	threshold int
	duration  time.Duration
	resetURL  string
	now       func() time.Time
}

type Option func(*Tracker)

func WithThreshold(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

func WithDuration(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.duration = d
		}
	}
}

func WithNotifier(n notification.Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// WithResetURL sets the link included in account-locked notices.
func WithResetURL(url string) Option {
	return func(t *Tracker) {
		t.resetURL = url
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		threshold: DefaultThreshold,
		duration:  DefaultDuration,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Threshold() int {
	return t.threshold
}

// Check returns an ACCOUNT_LOCKED error while a lockout is in force.
func (t *Tracker) Check(i identity.Identity) error {
	now := t.now()
	if i.IsLocked(now) {
		return apperrors.AccountLocked(*i.LockedUntil, now)
	}
	return nil
}

// RecordFailure counts one failed attempt. It returns ACCOUNT_LOCKED when
// this attempt (or a concurrent one) has locked the account, otherwise nil.
// Errors from the store are returned classified.
func (t *Tracker) RecordFailure(ctx context.Context, i identity.Identity) error {
	now := t.now()
	res, err := t.store.RegisterFailedLogin(ctx, i.ID, t.threshold, t.duration, now)
	if err != nil {
		return apperrors.Classify(err)
	}
	if res.LockedUntil == nil || !res.LockedUntil.After(now) {
		return nil
	}

	if res.Attempts == t.threshold {
		slog.Warn("Account locked after repeated failures", "identity", i, "attempts", res.Attempts, "until", *res.LockedUntil)
		t.notify(ctx, i, res)
	}
	return apperrors.AccountLocked(*res.LockedUntil, now)
}

// Reset clears the counter after a successful authentication.
func (t *Tracker) Reset(ctx context.Context, id uuid.UUID) error {
	if err := t.store.RecordSuccessfulLogin(ctx, id, t.now()); err != nil {
		return apperrors.Classify(err)
	}
	return nil
}

func (t *Tracker) notify(ctx context.Context, i identity.Identity, res identity.FailedLoginResult) {
	if t.notifier == nil {
		return
	}
	err := t.notifier.Send(context.WithoutCancel(ctx), notification.AccountLockedNotice, notification.NotificationData{
		To: i.Email,
		Data: map[string]string{
			"Attempts":    strconv.Itoa(res.Attempts),
			"LockedUntil": res.LockedUntil.UTC().Format(time.RFC1123),
			"ResetURL":    t.resetURL,
		},
	})
	if err != nil {
		slog.Error("Failed to send account locked notice", "identity", i, "err", err)
	}
}
