package strategy

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/response"
)

// FailureHook observes authentication failures, for auditing.
type FailureHook func(r *http.Request, strategy string, err error)

// Dispatcher holds the registered strategies by name.
type Dispatcher struct {
	strategies map[string]Strategy
	onFailure  FailureHook
}

type Option func(*Dispatcher)

func WithFailureHook(h FailureHook) Option {
	return func(d *Dispatcher) {
		d.onFailure = h
	}
}

func NewDispatcher(strategies []Strategy, opts ...Option) *Dispatcher {
	d := &Dispatcher{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		d.strategies[s.Name()] = s
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Authenticate runs the named strategies in order. Strategies whose
// credential is absent are skipped; the first strategy that finds its
// credential decides the outcome. A presented but invalid credential never
// falls through to a later strategy. INVALID_TOKEN is returned when every
// strategy was skipped.
func (d *Dispatcher) Authenticate(r *http.Request, names ...string) (*auth.AuthUser, error) {
	for _, name := range names {
		s := d.strategies[name]
		res := s.Authenticate(r)
		switch res.Outcome {
		case OutcomeSucceeded:
			return &auth.AuthUser{Identity: res.Identity, Strategy: name, SessionID: res.SessionID}, nil
		case OutcomeFailed:
			slog.Debug("Authentication strategy failed", "strategy", name, "code", res.Err.Code)
			if d.onFailure != nil {
				d.onFailure(r, name, res.Err)
			}
			return nil, res.Err
		}
	}
	return nil, apperrors.New(apperrors.ErrCodeInvalidToken, "authentication required")
}

// Require returns middleware that authenticates with the named strategies
// and rejects the request when none succeeds. Unknown names panic, since
// they are a routing mistake.
func (d *Dispatcher) Require(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("strategy: Require needs at least one strategy")
	}
	for _, name := range names {
		if _, ok := d.strategies[name]; !ok {
			panic(fmt.Sprintf("strategy: unknown strategy %q", name))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(WithRequestCache(r.Context()))
			user, err := d.Authenticate(r, names...)
			if err != nil {
				response.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuthUser(r.Context(), user)))
		})
	}
}
