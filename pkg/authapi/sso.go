package authapi

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/response"
	"github.com/tendant/lms-auth/pkg/sso"
	"github.com/tendant/lms-auth/pkg/strategy"
)

const (
	ssoCallbackPath = "/auth/callback"
	ssoFailurePath  = "/login"
)

// GetSSOLogin redirects the browser to the provider with a fresh state
// bound to a short-lived cookie.
// (GET /auth/sso/{provider}/login)
func (h Handle) GetSSOLogin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers.Get(name)
	if !ok {
		response.Error(w, r, apperrors.Newf(apperrors.ErrCodeNotFound, "unknown identity provider %q", name))
		return
	}
	state, err := sso.NewState()
	if err != nil {
		response.Error(w, r, apperrors.Internal(err, "failed to create sso state"))
		return
	}
	target, err := p.LoginURL(state)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	sso.SetStateCookie(w, state, h.secure)
	http.Redirect(w, r, target, http.StatusFound)
}

// SSOCallback completes a provider login. The browser is sent back to the
// frontend either with the token pair in the URL fragment or with
// ?error=<code>. Failures are audited by the dispatcher hook.
// (GET|POST /auth/sso/{provider}/callback)
func (h Handle) SSOCallback(w http.ResponseWriter, r *http.Request) {
	user, err := h.dispatcher.Authenticate(r, strategy.SSO)
	sso.ClearStateCookie(w, h.secure)
	if err != nil {
		h.redirectFrontend(w, r, ssoFailurePath, url.Values{"error": {string(apperrors.Classify(err).Code)}}, "")
		return
	}
	resp, err := h.startSession(r.Context(), w, user.Identity)
	if err != nil {
		h.failure(r, "sso_login", user.Identity.ID.String(), err)
		h.redirectFrontend(w, r, ssoFailurePath, url.Values{"error": {string(apperrors.Classify(err).Code)}}, "")
		return
	}
	h.success(r, "sso_login", user.Identity.ID.String())

	fragment := url.Values{
		"access_token":  {resp.Tokens.AccessToken},
		"refresh_token": {resp.Tokens.RefreshToken},
		"token_type":    {resp.Tokens.TokenType},
		"expires_at":    {strconv.FormatInt(resp.Tokens.AccessExpiresAt.Unix(), 10)},
	}
	h.redirectFrontend(w, r, ssoCallbackPath, nil, fragment.Encode())
}

func (h Handle) redirectFrontend(w http.ResponseWriter, r *http.Request, path string, query url.Values, fragment string) {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		response.Error(w, r, apperrors.Internal(err, "invalid frontend url"))
		return
	}
	u = u.JoinPath(path)
	u.RawQuery = query.Encode()
	u.Fragment = fragment
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// (GET /auth/sso/saml/metadata)
func (h Handle) GetSAMLMetadata(w http.ResponseWriter, r *http.Request) {
	if h.saml == nil {
		response.Error(w, r, apperrors.New(apperrors.ErrCodeNotFound, "SAML is not configured"))
		return
	}
	body, err := h.saml.Metadata()
	if err != nil {
		response.Error(w, r, apperrors.Internal(err, "failed to build SAML metadata"))
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
