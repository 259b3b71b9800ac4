// Package strategy authenticates HTTP requests.
//
// Each Strategy inspects a request for one kind of credential and returns
// a Result: Skipped when the credential is absent, Failed with a
// classified error, or Succeeded with the identity. A Dispatcher tries the
// strategies configured for a route in order and attaches the first
// success to the request context as an auth.AuthUser.
package strategy

import (
	"net/http"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
)

const (
	Local   = "local"
	Bearer  = "bearer"
	Session = "session"
	SSO     = "sso"
)

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result is the outcome of one strategy against one request.
type Result struct {
	Outcome   Outcome
	Identity  identity.Identity
	SessionID string
	Err       *apperrors.Error
}

func Succeeded(i identity.Identity) Result {
	return Result{Outcome: OutcomeSucceeded, Identity: i.Sanitized()}
}

func Failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: apperrors.Classify(err)}
}

func Skipped() Result {
	return Result{Outcome: OutcomeSkipped}
}

// Strategy authenticates a request with one kind of credential.
type Strategy interface {
	Name() string
	Authenticate(r *http.Request) Result
}
