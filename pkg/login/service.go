package login

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/lockout"
	"github.com/tendant/lms-auth/pkg/notification"
	"github.com/tendant/lms-auth/pkg/password"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
)

// SessionRevoker ends every session of an identity.
type SessionRevoker interface {
	DestroyAllForIdentity(ctx context.Context, identityID uuid.UUID) error
}

type LoginService struct {
	repo        identity.Repository
	hasher      *password.Hasher
	policy      password.Policy
	tokens      *tokengenerator.JwtService
	lockout     *lockout.Tracker
	sessions    SessionRevoker
	notifier    notification.Notifier
	frontendURL string
	now         func() time.Time
}

type Option func(*LoginService)

func WithPolicy(p password.Policy) Option {
	return func(s *LoginService) {
		s.policy = p
	}
}

func WithLockoutTracker(t *lockout.Tracker) Option {
	return func(s *LoginService) {
		s.lockout = t
	}
}

func WithSessionRevoker(r SessionRevoker) Option {
	return func(s *LoginService) {
		s.sessions = r
	}
}

func WithNotifier(n notification.Notifier) Option {
	return func(s *LoginService) {
		s.notifier = n
	}
}

// WithFrontendURL sets the base of links sent in reset and verification
// emails.
func WithFrontendURL(u string) Option {
	return func(s *LoginService) {
		s.frontendURL = strings.TrimRight(u, "/")
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LoginService) {
		s.now = now
	}
}

func NewLoginService(repo identity.Repository, hasher *password.Hasher, tokens *tokengenerator.JwtService, opts ...Option) *LoginService {
	s := &LoginService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		policy:   password.DefaultPolicy(),
		notifier: notification.LogNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lockout == nil {
		s.lockout = lockout.NewTracker(repo, lockout.WithNotifier(s.notifier), lockout.WithClock(s.now))
	}
	return s
}

// Authenticate verifies an email and password and returns the sanitized
// identity.
func (s *LoginService) Authenticate(ctx context.Context, email, pw string) (identity.Identity, error) {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return identity.Identity{}, apperrors.RequiredFieldMissing("email")
	}
	if pw == "" {
		return identity.Identity{}, apperrors.RequiredFieldMissing("password")
	}

	i, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			slog.Info("Login failed: user not found", "email", email)
			s.hasher.Equalize(ctx, pw)
			return identity.Identity{}, apperrors.InvalidCredentials()
		}
		return identity.Identity{}, apperrors.Classify(err)
	}

	if err := s.lockout.Check(i); err != nil {
		slog.Info("Login refused: account locked", "identity", i)
		return identity.Identity{}, err
	}

	if !i.HasPassword() {
		slog.Info("Login failed: account has no local password", "identity", i)
		s.hasher.Equalize(ctx, pw)
		return identity.Identity{}, apperrors.InvalidCredentials()
	}

	ok, err := s.hasher.Verify(ctx, pw, i.PasswordHash)
	if err != nil {
		return identity.Identity{}, apperrors.Classify(err)
	}
	if !ok {
		slog.Info("Login failed: wrong password", "identity", i)
		if err := s.lockout.RecordFailure(ctx, i); err != nil {
			return identity.Identity{}, err
		}
		return identity.Identity{}, apperrors.InvalidCredentials()
	}

	if !i.IsActive() {
		return identity.Identity{}, apperrors.AccountNotActive(string(i.Status))
	}

	if err := s.lockout.Reset(ctx, i.ID); err != nil {
		return identity.Identity{}, err
	}
	now := s.now().UTC()
	i.FailedLoginAttempts = 0
	i.LockedUntil = nil
	i.LastLoginAt = &now
	i.LastActiveAt = &now
	slog.Info("Login succeeded", "identity", i)
	return i.Sanitized(), nil
}

// TokenPair is an access and refresh token issued together.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// IssueTokens mints an access and refresh token for the identity.
func (s *LoginService) IssueTokens(i identity.Identity) (TokenPair, error) {
	access, accessExp, err := s.tokens.Issue(i, tokengenerator.AccessToken)
	if err != nil {
		return TokenPair{}, apperrors.Internal(err, "failed to issue access token")
	}
	refresh, refreshExp, err := s.tokens.Issue(i, tokengenerator.RefreshToken)
	if err != nil {
		return TokenPair{}, apperrors.Internal(err, "failed to issue refresh token")
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. Role and clearance are
// re-read from the store so the new access token reflects current values.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (TokenPair, identity.Identity, error) {
	i, err := s.resolve(ctx, refreshToken, tokengenerator.RefreshToken)
	if err != nil {
		return TokenPair{}, identity.Identity{}, err
	}
	if !i.IsActive() {
		return TokenPair{}, identity.Identity{}, apperrors.AccountNotActive(string(i.Status))
	}
	if err := s.lockout.Check(i); err != nil {
		return TokenPair{}, identity.Identity{}, err
	}
	pair, err := s.IssueTokens(i)
	if err != nil {
		return TokenPair{}, identity.Identity{}, err
	}
	return pair, i.Sanitized(), nil
}

// resolve verifies a token of type t and loads the identity it names. A
// token for an identity that no longer exists is INVALID_TOKEN.
func (s *LoginService) resolve(ctx context.Context, token string, t tokengenerator.TokenType) (identity.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return identity.Identity{}, apperrors.RequiredFieldMissing("token")
	}
	claims, err := s.tokens.Verify(token, t)
	if err != nil {
		return identity.Identity{}, err
	}
	id, err := claims.IdentityID()
	if err != nil {
		return identity.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "invalid token subject")
	}
	i, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Identity{}, apperrors.New(apperrors.ErrCodeInvalidToken, "invalid token")
		}
		return identity.Identity{}, apperrors.Classify(err)
	}
	return i, nil
}

func (s *LoginService) checkPolicy(pw string) error {
	if violations := s.policy.Check(pw); len(violations) > 0 {
		return apperrors.ValidationFailed("password does not meet policy", violations)
	}
	return nil
}

// PasswordStrength scores pw with the configured policy.
func (s *LoginService) PasswordStrength(pw string) password.Strength {
	return s.policy.Score(pw)
}

func (s *LoginService) hash(ctx context.Context, pw string) (string, error) {
	digest, err := s.hasher.Hash(ctx, pw)
	if errors.Is(err, password.ErrTooLong) {
		return "", apperrors.ValidationFailed("password does not meet policy", []string{err.Error()})
	}
	if err != nil {
		return "", apperrors.Classify(err)
	}
	return digest, nil
}

func (s *LoginService) link(path, token string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (s *LoginService) send(ctx context.Context, notice notification.NoticeType, to string, data map[string]string) {
	if err := s.notifier.Send(context.WithoutCancel(ctx), notice, notification.NotificationData{To: to, Data: data}); err != nil {
		slog.Error("Failed to send notice", "type", notice, "to", to, "err", err)
	}
}
