package authapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/login"
	"github.com/tendant/lms-auth/pkg/password"
	"github.com/tendant/lms-auth/pkg/response"
	"github.com/tendant/lms-auth/pkg/sessions"
)

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Organization string `json:"organization,omitempty"`
	Department   string `json:"department,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type TwoFactorVerifyRequest struct {
	Code string `json:"code"`
}

// LoginResponse is returned by login and refresh.
type LoginResponse struct {
	User   identity.Profile `json:"user"`
	Tokens login.TokenPair  `json:"tokens"`
}

// RegisterResponse is returned by register.
type RegisterResponse struct {
	User             identity.Profile  `json:"user"`
	PasswordStrength password.Strength `json:"password_strength"`
}

// PasswordResponse reports the strength of a newly set password.
type PasswordResponse struct {
	PasswordStrength password.Strength `json:"password_strength"`
}

type TwoFactorEnableResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

func decode(r *http.Request, v interface{}) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperrors.ValidationFailed("request body must be a JSON object", nil)
	}
	return nil
}

// currentUser returns the identity attached by the dispatcher. Routes
// calling it are always behind Require.
func currentUser(r *http.Request) *auth.AuthUser {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		panic("authapi: handler reached without an authenticated identity")
	}
	return user
}

// startSession creates a session for i, sets its cookie and issues a token
// pair.
func (h Handle) startSession(ctx context.Context, w http.ResponseWriter, i identity.Identity) (LoginResponse, error) {
	sess, err := h.sessionStore.Create(ctx, i)
	if err != nil {
		return LoginResponse{}, err
	}
	pair, err := h.loginService.IssueTokens(i)
	if err != nil {
		if derr := h.sessionStore.Destroy(ctx, sess.ID); derr != nil {
			slog.Warn("Failed to discard session", "err", derr)
		}
		return LoginResponse{}, err
	}
	h.cookies.Set(w, sess)
	return LoginResponse{User: i.Profile(), Tokens: pair}, nil
}

// Login
// (POST /api/v1/auth/login)
func (h Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	resp, err := h.startSession(r.Context(), w, user.Identity)
	if err != nil {
		h.failure(r, "login", user.Identity.ID.String(), err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "login", user.Identity.ID.String())
	response.JSON(w, r, http.StatusOK, "Login successful", resp)
}

// Logout ends the current session. Bearer tokens stay valid until they
// expire.
// (POST /api/v1/auth/logout)
func (h Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	sessionID := user.SessionID
	if sessionID == "" {
		// bearer won, but the caller may still hold a session cookie
		if id, ok := sessions.FromRequest(r); ok {
			if sess, err := h.sessionStore.Load(r.Context(), id); err == nil && sess.IdentityID == user.Identity.ID {
				sessionID = id
			}
		}
	}
	if sessionID != "" {
		if err := h.sessionStore.Destroy(r.Context(), sessionID); err != nil {
			h.failure(r, "logout", "", err)
			response.Error(w, r, err)
			return
		}
	}
	h.cookies.Clear(w)
	h.success(r, "logout", "")
	response.JSON(w, r, http.StatusOK, "Logged out", nil)
}

// (POST /api/v1/auth/register)
func (h Handle) PostRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	i, err := h.loginService.Register(r.Context(), login.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Organization: req.Organization,
		Department:   req.Department,
		JobTitle:     req.JobTitle,
	})
	if err != nil {
		h.failure(r, "register", req.Email, err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "register", i.ID.String())
	response.JSON(w, r, http.StatusCreated, "Registration successful, check your email to verify your account", RegisterResponse{
		User:             i.Profile(),
		PasswordStrength: h.loginService.PasswordStrength(req.Password),
	})
}

// (POST /api/v1/auth/refresh)
func (h Handle) PostRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	pair, i, err := h.loginService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.failure(r, "refresh", "", err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "refresh", i.ID.String())
	response.JSON(w, r, http.StatusOK, "Token refreshed", LoginResponse{User: i.Profile(), Tokens: pair})
}

// The reply is the same whether or not the email is known.
// (POST /api/v1/auth/forgot-password)
func (h Handle) PostForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.loginService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		response.Error(w, r, err)
		return
	}
	h.success(r, "password_reset_requested", req.Email)
	response.JSON(w, r, http.StatusOK, "If the account exists, a password reset link has been sent", nil)
}

// (POST /api/v1/auth/reset-password)
func (h Handle) PostResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.loginService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.failure(r, "password_reset", "", err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "password_reset", "")
	response.JSON(w, r, http.StatusOK, "Password has been reset", PasswordResponse{PasswordStrength: h.loginService.PasswordStrength(req.Password)})
}

// (POST /api/v1/auth/verify-email)
func (h Handle) PostVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	i, err := h.loginService.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.failure(r, "email_verification", "", err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "email_verification", i.ID.String())
	response.JSON(w, r, http.StatusOK, "Email verified", i.Profile())
}

// (GET /api/v1/auth/me)
func (h Handle) GetMe(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, "", currentUser(r).Identity.Profile())
}

// (POST /api/v1/auth/change-password)
func (h Handle) PostChangePassword(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.loginService.ChangePassword(r.Context(), user.Identity.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.failure(r, "password_change", "", err)
		response.Error(w, r, err)
		return
	}
	// all sessions were revoked with the old password
	h.cookies.Clear(w)
	h.success(r, "password_change", "")
	response.JSON(w, r, http.StatusOK, "Password changed, please sign in again", PasswordResponse{PasswordStrength: h.loginService.PasswordStrength(req.NewPassword)})
}

// Enable starts TOTP enrolment and returns the secret once.
// (POST /api/v1/auth/2fa/enable)
func (h Handle) Post2faEnable(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	secret, url, err := h.twofaService.Enable(r.Context(), user.Identity.ID)
	if err != nil {
		h.failure(r, "2fa_enable", "", err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "2fa_enable", "")
	response.JSON(w, r, http.StatusOK, "Scan the code with an authenticator app, then verify", TwoFactorEnableResponse{Secret: secret, URL: url})
}

// (POST /api/v1/auth/2fa/verify)
func (h Handle) Post2faVerify(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req TwoFactorVerifyRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.Code == "" {
		response.Error(w, r, apperrors.RequiredFieldMissing("code"))
		return
	}
	if err := h.twofaService.Verify(r.Context(), user.Identity.ID, req.Code); err != nil {
		h.failure(r, "2fa_verify", "", err)
		response.Error(w, r, err)
		return
	}
	h.success(r, "2fa_verify", "")
	response.JSON(w, r, http.StatusOK, "Two-factor authentication enabled", nil)
}
