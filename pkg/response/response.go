// Package response renders the uniform JSON envelope used by every auth
// endpoint and middleware.
package response

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code       apperrors.ErrorCode    `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"statusCode"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

type debugKey struct{}

// Debug marks requests so internal error detail is included in responses.
// Install it only outside production.
func Debug(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), debugKey{}, true)))
	})
}

func debugEnabled(ctx context.Context) bool {
	v, _ := ctx.Value(debugKey{}).(bool)
	return v
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, Envelope{Success: true, Message: message, Data: data})
}

// Error classifies err, logs it with full detail and writes the failure
// envelope. Internal errors expose only a generic message unless the request
// passed through Debug.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e := apperrors.Classify(err)
	status := e.HTTPStatusCode()

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "Request failed",
		"code", e.Code, "status", status, "method", r.Method, "path", r.URL.Path, "err", err)

	body := &ErrorBody{Code: e.Code, Message: e.Message, StatusCode: status, Details: e.Details}
	if e.Code == apperrors.ErrCodeInternal || e.Code == apperrors.ErrCodeServiceUnavailable {
		body.Details = nil
		if debugEnabled(r.Context()) {
			body.Details = map[string]interface{}{"cause": err.Error()}
		} else if e.Code == apperrors.ErrCodeInternal {
			body.Message = "internal server error"
		}
	}

	if d, ok := e.RetryAfter(); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(d.Seconds())))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="lms"`)
	}
	render.Status(r, status)
	render.JSON(w, r, Envelope{Success: false, Error: body})
}

// ClientIP returns the host part of the connection address. Forwarding
// headers are ignored; behind a trusted proxy, middleware.RealIP rewrites
// RemoteAddr before this is called.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
