package login

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/notification"
	"github.com/tendant/lms-auth/pkg/password"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
)

const (
	goodPassword  = "Tr4ck!Gold#Map"
	otherPassword = "Lake$Orbit7Fern"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type revoker struct {
	mu      sync.Mutex
	revoked []uuid.UUID
}

func (r *revoker) DestroyAllForIdentity(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, id)
	return nil
}

type fixture struct {
	svc      *LoginService
	repo     *identity.InMemoryRepository
	hasher   *password.Hasher
	tokens   *tokengenerator.JwtService
	notifier *notification.MockNotifier
	revoker  *revoker
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)}
	tokens, err := tokengenerator.NewJwtService(
		"access-secret-for-tests-0123456789",
		"refresh-secret-for-tests-9876543210",
		"lms-auth", "lms",
		tokengenerator.WithClock(clock.Now),
	)
	require.NoError(t, err)

	f := &fixture{
		repo:     identity.NewInMemoryRepository(),
		hasher:   password.NewHasher(bcrypt.MinCost, 2),
		tokens:   tokens,
		notifier: &notification.MockNotifier{},
		revoker:  &revoker{},
		clock:    clock,
	}
	f.svc = NewLoginService(f.repo, f.hasher, tokens,
		WithNotifier(f.notifier),
		WithSessionRevoker(f.revoker),
		WithFrontendURL("https://lms.example.gov/"),
		WithClock(clock.Now),
	)
	return f
}

func (f *fixture) seed(t *testing.T, email string, status identity.Status, pw string) identity.Identity {
	t.Helper()
	i := identity.NewIdentity(email)
	i.Status = status
	i.FirstName = "Pat"
	if pw != "" {
		hash, err := f.hasher.Hash(context.Background(), pw)
		require.NoError(t, err)
		i.PasswordHash = hash
	}
	created, err := f.repo.Create(context.Background(), i)
	require.NoError(t, err)
	return created
}

func tokenFrom(t *testing.T, n notification.SentNotification) string {
	t.Helper()
	u, err := url.Parse(n.Data["Link"])
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestAuthenticateSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)

	got, err := f.svc.Authenticate(ctx, "  User@Example.GOV ", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Empty(t, got.PasswordHash)
	assert.Empty(t, got.TwoFactorSecret)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, f.clock.Now(), *got.LastLoginAt)
}

func TestLockoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)

	for attempt := 1; attempt <= 4; attempt++ {
		_, err := f.svc.Authenticate(ctx, "user@example.gov", "Wrong!Pass"+string(rune('0'+attempt))+"xyz")
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "attempt %d", attempt)
	}
	_, err := f.svc.Authenticate(ctx, "user@example.gov", "Wrong!Pass5xyz")
	require.ErrorIs(t, err, apperrors.ErrAccountLocked)

	// the correct password does not get through a lock
	_, err = f.svc.Authenticate(ctx, "user@example.gov", goodPassword)
	require.ErrorIs(t, err, apperrors.ErrAccountLocked)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	retry, ok := appErr.RetryAfter()
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, retry)

	locked := f.notifier.Of(notification.AccountLockedNotice)
	require.Len(t, locked, 1)
	assert.Equal(t, "user@example.gov", locked[0].To)
	assert.Equal(t, "5", locked[0].Data["Attempts"])

	f.clock.Advance(31 * time.Minute)
	_, err = f.svc.Authenticate(ctx, "user@example.gov", goodPassword)
	require.NoError(t, err)

	stored, err := f.repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)

	for i := 0; i < 3; i++ {
		_, _ = f.svc.Authenticate(ctx, "user@example.gov", otherPassword)
	}
	stored, err := f.repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.FailedLoginAttempts)

	_, err = f.svc.Authenticate(ctx, "user@example.gov", goodPassword)
	require.NoError(t, err)
	stored, err = f.repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
}

func TestAuthenticateGenericFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "sso.only@example.gov", identity.StatusActive, "")
	f.seed(t, "suspended@example.gov", identity.StatusSuspended, goodPassword)

	_, err := f.svc.Authenticate(ctx, "nobody@example.gov", goodPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = f.svc.Authenticate(ctx, "sso.only@example.gov", goodPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// status is hidden from someone without the password
	_, err = f.svc.Authenticate(ctx, "suspended@example.gov", otherPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "suspended@example.gov", goodPassword)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotActive)

	_, err = f.svc.Authenticate(ctx, "", goodPassword)
	assert.ErrorIs(t, err, apperrors.ErrRequiredFieldMissing)
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Register(ctx, RegisterParams{
		Email:        "New.Learner@Example.gov",
		Password:     goodPassword,
		FirstName:    "Robin",
		LastName:     "Hale",
		Organization: "DOE",
	})
	require.NoError(t, err)
	assert.Equal(t, "new.learner@example.gov", created.Email)
	assert.Equal(t, identity.RoleStudent, created.Role)
	assert.Equal(t, identity.ClearancePublic, created.Clearance)
	assert.Equal(t, identity.StatusPendingVerification, created.Status)
	assert.Empty(t, created.PasswordHash)

	_, err = f.svc.Authenticate(ctx, "new.learner@example.gov", goodPassword)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotActive)

	sent := f.notifier.Of(notification.EmailVerificationNotice)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Data["Link"], "https://lms.example.gov/verify-email?token=")

	verified, err := f.svc.VerifyEmail(ctx, tokenFrom(t, sent[0]))
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.Equal(t, identity.StatusActive, verified.Status)

	_, err = f.svc.Authenticate(ctx, "new.learner@example.gov", goodPassword)
	assert.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterParams{Email: "new.learner@example.gov", Password: goodPassword, FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateResource)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, RegisterParams{Email: "a@example.gov", Password: "password123", FirstName: "A", LastName: "B"})
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)
	appErr, _ := apperrors.As(err)
	assert.NotEmpty(t, appErr.Details["violations"])

	_, err = f.svc.Register(ctx, RegisterParams{Email: "a@example.gov", Password: goodPassword, LastName: "B"})
	assert.ErrorIs(t, err, apperrors.ErrRequiredFieldMissing)

	_, err = f.svc.Register(ctx, RegisterParams{Email: "not-an-email", Password: goodPassword, FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestOverlongPasswordIsValidationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	long := "Tr4ining!Grid" + strings.Repeat("xY", 31)

	_, err := f.svc.Register(ctx, RegisterParams{Email: "long@example.gov", Password: long, FirstName: "A", LastName: "B"})
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)

	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, seeded.ID, goodPassword, long), apperrors.ErrValidationFailed)

	// the byte limit holds even for an otherwise empty policy
	f.svc.policy = password.Policy{}
	_, err = f.svc.Register(ctx, RegisterParams{Email: "long2@example.gov", Password: long, FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, err = f.svc.Authenticate(ctx, "user@example.gov", long)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestPasswordStrength(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, password.StrengthStrong, f.svc.PasswordStrength(goodPassword))
	assert.Equal(t, password.StrengthWeak, f.svc.PasswordStrength("password123"))
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "unknown@example.gov"))
	assert.Empty(t, f.notifier.Of(notification.PasswordResetNotice))

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "USER@example.gov"))
	sent := f.notifier.Of(notification.PasswordResetNotice)
	require.Len(t, sent, 1)
	token := tokenFrom(t, sent[0])

	err := f.svc.ResetPassword(ctx, token, "short")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	pair, err := f.svc.IssueTokens(seeded)
	require.NoError(t, err)
	err = f.svc.ResetPassword(ctx, pair.AccessToken, otherPassword)
	assert.ErrorIs(t, err, apperrors.ErrWrongTokenType)

	require.NoError(t, f.svc.ResetPassword(ctx, token, otherPassword))
	assert.Equal(t, []uuid.UUID{seeded.ID}, f.revoker.revoked)

	_, err = f.svc.Authenticate(ctx, "user@example.gov", goodPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "user@example.gov", otherPassword)
	assert.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, goodPassword), apperrors.ErrTokenExpired)
}

func TestResetClearsLockout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Authenticate(ctx, "user@example.gov", otherPassword)
	}
	_, err := f.svc.Authenticate(ctx, "user@example.gov", goodPassword)
	require.ErrorIs(t, err, apperrors.ErrAccountLocked)

	token, _, err := f.tokens.Issue(seeded, tokengenerator.PasswordResetToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.ResetPassword(ctx, token, otherPassword))

	_, err = f.svc.Authenticate(ctx, "user@example.gov", otherPassword)
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)
	suspended := f.seed(t, "gone@example.gov", identity.StatusSuspended, goodPassword)

	pair, err := f.svc.IssueTokens(active)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	f.clock.Advance(time.Minute)
	next, got, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	claims, err := f.tokens.Verify(next.AccessToken, tokengenerator.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, active.ID.String(), claims.Subject)

	_, _, err = f.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrWrongTokenType)

	gonePair, err := f.svc.IssueTokens(suspended)
	require.NoError(t, err)
	_, _, err = f.svc.Refresh(ctx, gonePair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotActive)

	ghost := identity.NewIdentity("ghost@example.gov")
	ghostPair, err := f.svc.IssueTokens(ghost)
	require.NoError(t, err)
	_, _, err = f.svc.Refresh(ctx, ghostPair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seeded := f.seed(t, "user@example.gov", identity.StatusActive, goodPassword)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, seeded.ID, otherPassword, otherPassword), apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, seeded.ID, goodPassword, goodPassword), apperrors.ErrValidationFailed)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, seeded.ID, goodPassword, "weakpassword"), apperrors.ErrValidationFailed)

	require.NoError(t, f.svc.ChangePassword(ctx, seeded.ID, goodPassword, otherPassword))
	_, err := f.svc.Authenticate(ctx, "user@example.gov", otherPassword)
	assert.NoError(t, err)
	assert.Len(t, f.revoker.revoked, 1)
}
