package twofa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

const (
	DefaultIssuer     = "LMS"
	DefaultTotpPeriod = 30
	DefaultSkew       = 1
)

// Store is the part of the credential store the service needs.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (identity.Identity, error)
	SetTwoFactor(ctx context.Context, id uuid.UUID, secret string, enabled bool, now time.Time) error
}

type TwoFaService struct {
	store      Store
	issuer     string
	totpPeriod uint
	skew       uint
	now        func() time.Time
}

type Option func(*TwoFaService)

func WithIssuer(issuer string) Option {
	return func(s *TwoFaService) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithTotpPeriod sets the code validity window in seconds.
func WithTotpPeriod(seconds uint) Option {
	return func(s *TwoFaService) {
		if seconds > 0 {
			s.totpPeriod = seconds
		}
	}
}

// WithSkew sets how many periods either side of now are accepted.
func WithSkew(periods uint) Option {
	return func(s *TwoFaService) {
		s.skew = periods
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TwoFaService) {
		s.now = now
	}
}

func NewTwoFaService(store Store, opts ...Option) *TwoFaService {
	s := &TwoFaService{
		store:      store,
		issuer:     DefaultIssuer,
		totpPeriod: DefaultTotpPeriod,
		skew:       DefaultSkew,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TwoFaService) lookup(ctx context.Context, id uuid.UUID) (identity.Identity, error) {
	i, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Identity{}, apperrors.New(apperrors.ErrCodeNotFound, "identity not found")
		}
		return identity.Identity{}, apperrors.Classify(err)
	}
	return i, nil
}

// Enable generates and stores a fresh TOTP secret for the identity. The
// secret is not enforced until a code is verified. Calling Enable again
// before verification replaces the pending secret; once 2FA is active it
// is refused.
func (s *TwoFaService) Enable(ctx context.Context, id uuid.UUID) (secret, url string, err error) {
	i, err := s.lookup(ctx, id)
	if err != nil {
		return "", "", err
	}
	if i.TwoFactorEnabled {
		return "", "", apperrors.DuplicateResource("two-factor enrolment")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: i.Email,
		Period:      s.totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return "", "", apperrors.Internal(err, "failed to generate two-factor secret")
	}
	if err := s.store.SetTwoFactor(ctx, id, key.Secret(), false, s.now().UTC()); err != nil {
		return "", "", apperrors.Classify(err)
	}
	slog.Info("Two-factor enrolment started", "identity", i)
	return key.Secret(), key.URL(), nil
}

// Verify checks code against the identity's secret. The first accepted
// code completes enrolment. A wrong code, or an identity that never started
// enrolment, yields INVALID_CREDENTIALS.
func (s *TwoFaService) Verify(ctx context.Context, id uuid.UUID, code string) error {
	i, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if i.TwoFactorSecret == "" || !s.Validate(i.TwoFactorSecret, code) {
		slog.Warn("Two-factor code rejected", "identity", i)
		return apperrors.New(apperrors.ErrCodeInvalidCredentials, "invalid two-factor code")
	}
	if !i.TwoFactorEnabled {
		if err := s.store.SetTwoFactor(ctx, id, i.TwoFactorSecret, true, s.now().UTC()); err != nil {
			return apperrors.Classify(err)
		}
		slog.Info("Two-factor enrolment completed", "identity", i)
	}
	return nil
}

// Validate reports whether code is a current TOTP for secret.
func (s *TwoFaService) Validate(secret, code string) bool {
	if code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    s.totpPeriod,
		Skew:      s.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Passcode returns the current code for secret. Used by tests and tooling.
func (s *TwoFaService) Passcode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, s.now().UTC(), totp.ValidateOpts{
		Period:    s.totpPeriod,
		Skew:      s.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
