package sso

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

const (
	DefaultTimeout  = 10 * time.Second
	StateCookieName = "lms_sso_state"
	stateTTL        = 10 * time.Minute
)

// Provider is one external identity provider.
type Provider interface {
	Name() string
	// LoginURL is where the browser is sent to start a login. state is
	// echoed back on the callback.
	LoginURL(state string) (string, error)
	// Callback validates the provider's response carried by cb.
	Callback(ctx context.Context, cb CallbackData) (Assertion, error)
}

// CallbackData is the part of a callback request a provider reads. It is
// copied out of the request so a provider still running after its timeout
// never touches a request whose handler has returned.
type CallbackData struct {
	Query       url.Values
	Form        url.Values
	StateCookie string
}

// ReadCallback parses r and copies its query, POST form and state cookie.
func ReadCallback(r *http.Request) (CallbackData, error) {
	if err := r.ParseForm(); err != nil {
		return CallbackData{}, fmt.Errorf("failed to parse callback: %w", err)
	}
	cb := CallbackData{
		Query: cloneValues(r.URL.Query()),
		Form:  cloneValues(r.PostForm),
	}
	if c, err := r.Cookie(StateCookieName); err == nil {
		cb.StateCookie = c.Value
	}
	return cb, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
	timeout   time.Duration
}

func NewRegistry(timeout time.Duration, providers ...Provider) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Registry{providers: make(map[string]Provider, len(providers)), timeout: timeout}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

// Assert runs p's callback under the registry timeout. Every failure is
// classified: timeouts as SERVICE_UNAVAILABLE, everything else as
// INVALID_TOKEN.
func (r *Registry) Assert(ctx context.Context, p Provider, req *http.Request) (Assertion, error) {
	cb, err := ReadCallback(req)
	if err != nil {
		return Assertion{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "identity provider response rejected")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		a   Assertion
		err error
	}
	done := make(chan result, 1)
	go func() {
		a, err := p.Callback(ctx, cb)
		done <- result{a, err}
	}()

	select {
	case <-ctx.Done():
		return Assertion{}, apperrors.ServiceUnavailable(ctx.Err(), "identity provider timed out")
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return Assertion{}, apperrors.ServiceUnavailable(res.err, "identity provider timed out")
			}
			var appErr *apperrors.Error
			if errors.As(res.err, &appErr) {
				return Assertion{}, appErr
			}
			return Assertion{}, apperrors.Wrap(res.err, apperrors.ErrCodeInvalidToken, "identity provider response rejected")
		}
		res.a.Provider = p.Name()
		return res.a, nil
	}
}

// NewState returns a random value to bind a login redirect to its callback.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate sso state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetStateCookie stores state for the callback to compare against. It is
// Lax so it survives the top-level redirect back from the provider.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/auth/sso",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/auth/sso",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// checkState compares the state parameter with the state cookie.
func checkState(cb CallbackData, got string) error {
	if cb.StateCookie == "" {
		return errors.New("missing sso state cookie")
	}
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(cb.StateCookie)) != 1 {
		return errors.New("sso state mismatch")
	}
	return nil
}
