package login

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/notification"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
)

type RegisterParams struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Organization string
	Department   string
	JobTitle     string
}

// Register creates a student identity pending email verification and sends
// the verification link.
func (s *LoginService) Register(ctx context.Context, params RegisterParams) (identity.Identity, error) {
	email := identity.NormalizeEmail(params.Email)
	switch {
	case email == "":
		return identity.Identity{}, apperrors.RequiredFieldMissing("email")
	case params.Password == "":
		return identity.Identity{}, apperrors.RequiredFieldMissing("password")
	case strings.TrimSpace(params.FirstName) == "":
		return identity.Identity{}, apperrors.RequiredFieldMissing("first_name")
	case strings.TrimSpace(params.LastName) == "":
		return identity.Identity{}, apperrors.RequiredFieldMissing("last_name")
	}
	if !strings.Contains(email, "@") {
		return identity.Identity{}, apperrors.ValidationFailed("email address is not valid", nil)
	}
	if err := s.checkPolicy(params.Password); err != nil {
		return identity.Identity{}, err
	}

	hash, err := s.hash(ctx, params.Password)
	if err != nil {
		return identity.Identity{}, err
	}

	i := identity.NewIdentity(email)
	i.PasswordHash = hash
	i.FirstName = strings.TrimSpace(params.FirstName)
	i.LastName = strings.TrimSpace(params.LastName)
	i.Organization = strings.TrimSpace(params.Organization)
	i.Department = strings.TrimSpace(params.Department)
	i.JobTitle = strings.TrimSpace(params.JobTitle)

	created, err := s.repo.Create(ctx, i)
	if err != nil {
		return identity.Identity{}, apperrors.Classify(err)
	}
	slog.Info("Identity registered", "identity", created, "password_strength", s.policy.Score(params.Password))

	s.sendVerification(ctx, created)
	return created.Sanitized(), nil
}

func (s *LoginService) sendVerification(ctx context.Context, i identity.Identity) {
	token, _, err := s.tokens.Issue(i, tokengenerator.EmailVerificationToken)
	if err != nil {
		slog.Error("Failed to issue email verification token", "identity", i, "err", err)
		return
	}
	s.send(ctx, notification.EmailVerificationNotice, i.Email, map[string]string{
		"Link":      s.link("/verify-email", token),
		"ExpiresIn": s.tokens.Expiry(tokengenerator.EmailVerificationToken).String(),
	})
}

// VerifyEmail consumes an email verification token. Identities pending
// verification become active.
func (s *LoginService) VerifyEmail(ctx context.Context, token string) (identity.Identity, error) {
	i, err := s.resolve(ctx, token, tokengenerator.EmailVerificationToken)
	if err != nil {
		return identity.Identity{}, err
	}
	updated, err := s.repo.MarkEmailVerified(ctx, i.ID, s.now().UTC())
	if err != nil {
		return identity.Identity{}, apperrors.Classify(err)
	}
	slog.Info("Email verified", "identity", updated)
	return updated.Sanitized(), nil
}

// RequestPasswordReset sends a reset link when the email belongs to an
// identity. It reports success either way.
func (s *LoginService) RequestPasswordReset(ctx context.Context, email string) error {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return apperrors.RequiredFieldMissing("email")
	}
	i, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			slog.Error("Password reset lookup failed", "email", email, "err", err)
		} else {
			slog.Info("Password reset requested for unknown email", "email", email)
		}
		return nil
	}

	token, _, err := s.tokens.Issue(i, tokengenerator.PasswordResetToken)
	if err != nil {
		slog.Error("Failed to issue password reset token", "identity", i, "err", err)
		return nil
	}
	s.send(ctx, notification.PasswordResetNotice, i.Email, map[string]string{
		"Link":      s.link("/reset-password", token),
		"ExpiresIn": s.tokens.Expiry(tokengenerator.PasswordResetToken).String(),
	})
	return nil
}

// ResetPassword sets a new password from a reset token. The lockout is
// cleared and every existing session ends.
func (s *LoginService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return apperrors.RequiredFieldMissing("password")
	}
	i, err := s.resolve(ctx, token, tokengenerator.PasswordResetToken)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, i, newPassword); err != nil {
		return err
	}
	slog.Info("Password reset", "identity", i)
	return nil
}

// ChangePassword replaces the password of an authenticated identity after
// checking the current one.
func (s *LoginService) ChangePassword(ctx context.Context, id uuid.UUID, current, newPassword string) error {
	if current == "" {
		return apperrors.RequiredFieldMissing("current_password")
	}
	if newPassword == "" {
		return apperrors.RequiredFieldMissing("new_password")
	}
	i, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperrors.New(apperrors.ErrCodeNotFound, "identity not found")
		}
		return apperrors.Classify(err)
	}
	ok, err := s.hasher.Verify(ctx, current, i.PasswordHash)
	if err != nil {
		return apperrors.Classify(err)
	}
	if !ok {
		return apperrors.InvalidCredentials()
	}
	if current == newPassword {
		return apperrors.ValidationFailed("new password must differ from the current one", nil)
	}
	if err := s.setPassword(ctx, i, newPassword); err != nil {
		return err
	}
	slog.Info("Password changed", "identity", i)
	return nil
}

func (s *LoginService) setPassword(ctx context.Context, i identity.Identity, pw string) error {
	if err := s.checkPolicy(pw); err != nil {
		return err
	}
	hash, err := s.hash(ctx, pw)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, i.ID, hash, s.now().UTC()); err != nil {
		return apperrors.Classify(err)
	}
	if s.sessions != nil {
		if err := s.sessions.DestroyAllForIdentity(ctx, i.ID); err != nil {
			slog.Error("Failed to end sessions after password change", "identity", i, "err", err)
		}
	}
	return nil
}
