// Package audit records security-relevant outcomes. Every event is logged
// through slog and counted in Prometheus.
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/response"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audited action.
type Event struct {
	Actor     string
	Action    string
	Outcome   Outcome
	Code      apperrors.ErrorCode
	Timestamp time.Time
	RequestID string
	IP        string
	UserAgent string
	Metadata  map[string]interface{}
}

// WithMetadata adds metadata to the audit event.
func (e Event) WithMetadata(key string, value interface{}) Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Reporter writes audit events.
type Reporter struct {
	logger   *slog.Logger
	outcomes *prometheus.CounterVec
	requests *prometheus.CounterVec
	now      func() time.Time
}

// NewReporter registers the audit counters with reg. A nil reg uses the
// default registry.
func NewReporter(logger *slog.Logger, reg prometheus.Registerer) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Reporter{
		logger: logger,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_auth_events_total",
			Help: "Audited authentication and authorization events.",
		}, []string{"action", "outcome", "code"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_auth_http_requests_total",
			Help: "HTTP requests served by the auth service.",
		}, []string{"method", "route", "status"}),
		now: time.Now,
	}
	reg.MustRegister(r.outcomes, r.requests)
	return r
}

// Record logs and counts e. A zero Timestamp is filled in.
func (r *Reporter) Record(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	r.outcomes.WithLabelValues(e.Action, string(e.Outcome), string(e.Code)).Inc()

	level := slog.LevelInfo
	if e.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}
	attrs := []any{
		"actor", e.Actor,
		"action", e.Action,
		"outcome", e.Outcome,
		"timestamp", e.Timestamp,
		"request_id", e.RequestID,
		"ip", e.IP,
		"user_agent", e.UserAgent,
	}
	if e.Code != "" {
		attrs = append(attrs, "code", e.Code)
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, "metadata", e.Metadata)
	}
	r.logger.Log(ctx, level, "Audit", attrs...)
}

// FromRequest starts an event carrying the request's id, client address
// and user agent. The actor defaults to the authenticated identity.
func FromRequest(req *http.Request, action string) Event {
	e := Event{
		Action:    action,
		RequestID: middleware.GetReqID(req.Context()),
		IP:        response.ClientIP(req),
		UserAgent: req.UserAgent(),
	}
	if user, ok := auth.FromContext(req.Context()); ok {
		e.Actor = user.Identity.ID.String()
	}
	return e
}

// Success records a successful action by actor.
func (r *Reporter) Success(req *http.Request, action, actor string) {
	e := FromRequest(req, action)
	if actor != "" {
		e.Actor = actor
	}
	e.Outcome = OutcomeSuccess
	r.Record(req.Context(), e)
}

// Failure records a failed action. actor is whatever the caller claimed to
// be, such as the submitted email.
func (r *Reporter) Failure(req *http.Request, action, actor string, err error) {
	e := FromRequest(req, action)
	if actor != "" {
		e.Actor = actor
	}
	e.Outcome = OutcomeFailure
	e.Code = apperrors.Classify(err).Code
	r.Record(req.Context(), e)
}
