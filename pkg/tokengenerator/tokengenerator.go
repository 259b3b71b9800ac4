package tokengenerator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

type TokenType string

const (
	AccessToken            TokenType = "access"
	RefreshToken           TokenType = "refresh"
	PasswordResetToken     TokenType = "password_reset"
	EmailVerificationToken TokenType = "email_verification"
)

const (
	DefaultAccessTokenExpiry       = time.Hour
	DefaultRefreshTokenExpiry      = 7 * 24 * time.Hour
	DefaultPasswordResetExpiry     = time.Hour
	DefaultEmailVerificationExpiry = 24 * time.Hour
)

// Claims is the typed payload of every token. Role, organization and
// clearance are a snapshot taken at issue time.
type Claims struct {
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Organization string    `json:"org,omitempty"`
	Clearance    string    `json:"clearance"`
	Type         TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim.
func (c *Claims) IdentityID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JwtService issues and verifies HS256 tokens. Refresh tokens are signed
// with their own secret; every other type uses the access secret.
type JwtService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	expiry        map[TokenType]time.Duration
	now           func() time.Time
}

type Option func(*JwtService)

func WithAccessTokenExpiry(d time.Duration) Option {
	return func(s *JwtService) { s.setExpiry(AccessToken, d) }
}

func WithRefreshTokenExpiry(d time.Duration) Option {
	return func(s *JwtService) { s.setExpiry(RefreshToken, d) }
}

func WithPasswordResetExpiry(d time.Duration) Option {
	return func(s *JwtService) { s.setExpiry(PasswordResetToken, d) }
}

func WithEmailVerificationExpiry(d time.Duration) Option {
	return func(s *JwtService) { s.setExpiry(EmailVerificationToken, d) }
}

func WithClock(now func() time.Time) Option {
	return func(s *JwtService) { s.now = now }
}

func (s *JwtService) setExpiry(t TokenType, d time.Duration) {
	if d > 0 {
		s.expiry[t] = d
	}
}

func NewJwtService(accessSecret, refreshSecret, issuer, audience string, opts ...Option) (*JwtService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	s := &JwtService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		audience:      audience,
		expiry: map[TokenType]time.Duration{
			AccessToken:            DefaultAccessTokenExpiry,
			RefreshToken:           DefaultRefreshTokenExpiry,
			PasswordResetToken:     DefaultPasswordResetExpiry,
			EmailVerificationToken: DefaultEmailVerificationExpiry,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *JwtService) secretFor(t TokenType) ([]byte, bool) {
	switch t {
	case RefreshToken:
		return s.refreshSecret, true
	case AccessToken, PasswordResetToken, EmailVerificationToken:
		return s.accessSecret, true
	}
	return nil, false
}

// Expiry returns the lifetime configured for a token type.
func (s *JwtService) Expiry(t TokenType) time.Duration {
	return s.expiry[t]
}

// Issue mints a token of type t for the identity.
func (s *JwtService) Issue(i identity.Identity, t TokenType) (string, time.Time, error) {
	secret, ok := s.secretFor(t)
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown token type %q", t)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.expiry[t])
	claims := Claims{
		Email:        i.Email,
		Role:         string(i.Role),
		Organization: i.Organization,
		Clearance:    string(i.Clearance),
		Type:         t,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   i.ID.String(),
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		slog.Error("Failed to sign token", "type", t, "err", err)
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer, audience, expiry and finally that the
// token is of the expected type, in that order. An expired token always
// fails with TOKEN_EXPIRED regardless of its type.
func (s *JwtService) Verify(tokenStr string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// The declared type selects the key; a forged type fails the
		// signature check.
		secret, ok := s.secretFor(claims.Type)
		if !ok {
			return nil, fmt.Errorf("unknown token type %q", claims.Type)
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeTokenExpired, "token has expired")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "invalid token")
	}
	if claims.Type != expected {
		return nil, apperrors.Newf(apperrors.ErrCodeWrongTokenType, "expected %s token", expected).
			WithDetail("got", string(claims.Type))
	}
	return claims, nil
}

// IsExpired reports whether the token's expiry has passed without checking
// the signature. Unparseable tokens count as expired.
func (s *JwtService) IsExpired(tokenStr string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !s.now().Before(claims.ExpiresAt.Time)
}
