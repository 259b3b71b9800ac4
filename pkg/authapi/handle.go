// Package authapi exposes the authentication core over HTTP: the REST
// endpoints under /api/v1/auth and the SSO redirect and callback routes.
package authapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/lms-auth/pkg/audit"
	"github.com/tendant/lms-auth/pkg/login"
	"github.com/tendant/lms-auth/pkg/ratelimit"
	"github.com/tendant/lms-auth/pkg/sessions"
	"github.com/tendant/lms-auth/pkg/sso"
	"github.com/tendant/lms-auth/pkg/strategy"
	"github.com/tendant/lms-auth/pkg/twofa"
)

// Handle holds the services behind the auth routes.
type Handle struct {
	loginService *login.LoginService
	twofaService *twofa.TwoFaService
	sessionStore *sessions.Store
	cookies      *sessions.CookieSetter
	dispatcher   *strategy.Dispatcher
	providers    *sso.Registry
	saml         *sso.SAMLProvider
	reporter     *audit.Reporter
	limiter      *ratelimit.Middleware
	frontendURL  string
	secure       bool
}

type Option func(*Handle)

func NewHandle(opts ...Option) Handle {
	h := Handle{
		providers:   sso.NewRegistry(sso.DefaultTimeout),
		frontendURL: "http://localhost:3000",
	}
	for _, opt := range opts {
		opt(&h)
	}
	h.cookies = sessions.NewCookieSetter(h.secure)
	return h
}

func WithLoginService(ls *login.LoginService) Option {
	return func(h *Handle) {
		h.loginService = ls
	}
}

func WithTwoFaService(ts *twofa.TwoFaService) Option {
	return func(h *Handle) {
		h.twofaService = ts
	}
}

func WithSessionStore(s *sessions.Store) Option {
	return func(h *Handle) {
		h.sessionStore = s
	}
}

func WithDispatcher(d *strategy.Dispatcher) Option {
	return func(h *Handle) {
		h.dispatcher = d
	}
}

// WithProviders sets the SSO providers. saml, when non-nil, also serves
// the service provider metadata.
func WithProviders(r *sso.Registry, saml *sso.SAMLProvider) Option {
	return func(h *Handle) {
		h.providers = r
		h.saml = saml
	}
}

func WithReporter(r *audit.Reporter) Option {
	return func(h *Handle) {
		h.reporter = r
	}
}

// WithRateLimit limits every auth route per client IP, and the
// authenticated routes per identity as well.
func WithRateLimit(m *ratelimit.Middleware) Option {
	return func(h *Handle) {
		h.limiter = m
	}
}

func WithFrontendURL(u string) Option {
	return func(h *Handle) {
		h.frontendURL = u
	}
}

// WithSecureCookies marks session and SSO state cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(h *Handle) {
		h.secure = secure
	}
}

// Routes mounts the REST and SSO routes on r.
func (h Handle) Routes(r chi.Router) {
	r.Route("/api/v1/auth", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Handler)
		}
		r.With(h.dispatcher.Require(strategy.Local)).Post("/login", h.PostLogin)
		r.Post("/register", h.PostRegister)
		r.Post("/refresh", h.PostRefresh)
		r.Post("/forgot-password", h.PostForgotPassword)
		r.Post("/reset-password", h.PostResetPassword)
		r.Post("/verify-email", h.PostVerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(h.dispatcher.Require(strategy.Bearer, strategy.Session))
			if h.limiter != nil {
				r.Use(h.limiter.UserHandler)
			}
			r.Post("/logout", h.PostLogout)
			r.Get("/me", h.GetMe)
			r.Post("/change-password", h.PostChangePassword)
			r.Post("/2fa/enable", h.Post2faEnable)
			r.Post("/2fa/verify", h.Post2faVerify)
		})
	})

	r.Route("/auth/sso", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Handler)
		}
		r.Get("/saml/metadata", h.GetSAMLMetadata)
		r.Get("/{provider}/login", h.GetSSOLogin)
		r.Get("/{provider}/callback", h.SSOCallback)
		r.Post("/{provider}/callback", h.SSOCallback)
	})
}

func (h Handle) success(r *http.Request, action, actor string) {
	if h.reporter != nil {
		h.reporter.Success(r, action, actor)
	}
}

func (h Handle) failure(r *http.Request, action, actor string, err error) {
	if h.reporter != nil {
		h.reporter.Failure(r, action, actor, err)
	}
}
