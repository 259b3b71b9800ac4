package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/notification"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixture(t *testing.T) (*Tracker, *identity.InMemoryRepository, identity.Identity, *clock, *notification.MockNotifier) {
	repo := identity.NewInMemoryRepository()
	i := identity.NewIdentity("user@example.gov")
	i.Status = identity.StatusActive
	i, err := repo.Create(context.Background(), i)
	require.NoError(t, err)

	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	n := &notification.MockNotifier{}
	tr := NewTracker(repo, WithClock(c.Now), WithNotifier(n), WithResetURL("https://lms.example.gov/forgot"))
	return tr, repo, i, c, n
}

func TestLocksOnThreshold(t *testing.T) {
	ctx := context.Background()
	tr, repo, i, c, n := newFixture(t)

	for attempt := 1; attempt < DefaultThreshold; attempt++ {
		assert.NoError(t, tr.RecordFailure(ctx, i), "attempt %d", attempt)
	}
	err := tr.RecordFailure(ctx, i)
	require.ErrorIs(t, err, apperrors.ErrAccountLocked)

	locked, _ := repo.FindByID(ctx, i.ID)
	assert.ErrorIs(t, tr.Check(locked), apperrors.ErrAccountLocked)

	sent := n.Of(notification.AccountLockedNotice)
	require.Len(t, sent, 1)
	assert.Equal(t, "user@example.gov", sent[0].To)
	assert.Equal(t, "5", sent[0].Data["Attempts"])

	// Expiry reopens the account.
	c.Advance(DefaultDuration + time.Second)
	assert.NoError(t, tr.Check(locked))
}

func TestLockedErrorCarriesRetryAfter(t *testing.T) {
	ctx := context.Background()
	tr, _, i, _, _ := newFixture(t)
	var err error
	for n := 0; n < DefaultThreshold; n++ {
		err = tr.RecordFailure(ctx, i)
	}
	e, ok := apperrors.As(err)
	require.True(t, ok)
	d, ok := e.RetryAfter()
	require.True(t, ok)
	assert.Equal(t, DefaultDuration, d)
}

func TestResetClearsCounter(t *testing.T) {
	ctx := context.Background()
	tr, repo, i, _, _ := newFixture(t)

	for n := 0; n < DefaultThreshold-1; n++ {
		require.NoError(t, tr.RecordFailure(ctx, i))
	}
	require.NoError(t, tr.Reset(ctx, i.ID))

	got, _ := repo.FindByID(ctx, i.ID)
	assert.Zero(t, got.FailedLoginAttempts)

	// A full threshold is needed again.
	for n := 0; n < DefaultThreshold-1; n++ {
		require.NoError(t, tr.RecordFailure(ctx, i))
	}
}

func TestCustomThreshold(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewInMemoryRepository()
	i, err := repo.Create(ctx, identity.NewIdentity("short@example.gov"))
	require.NoError(t, err)

	tr := NewTracker(repo, WithThreshold(2), WithDuration(time.Minute))
	assert.NoError(t, tr.RecordFailure(ctx, i))
	assert.ErrorIs(t, tr.RecordFailure(ctx, i), apperrors.ErrAccountLocked)
	assert.Equal(t, 2, tr.Threshold())
}

func TestUnknownIdentity(t *testing.T) {
	tr := NewTracker(identity.NewInMemoryRepository())
	err := tr.RecordFailure(context.Background(), identity.NewIdentity("ghost@example.gov"))
	assert.Error(t, err)
}
