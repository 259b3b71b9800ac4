package errors

import (
	"context"
	"errors"
	"net"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Postgres SQLSTATE codes the classifier recognises.
const (
	pgUniqueViolation  = "23505"
	pgNotNullViolation = "23502"
	pgCheckViolation   = "23514"
)

// Classify maps a low-level failure onto the error taxonomy. Structured
// errors pass through unchanged; anything unrecognised becomes an
// INTERNAL_ERROR that keeps the original as its cause.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Wrap(err, ErrCodeDuplicateResource, "resource already exists").
				WithDetail("constraint", pgErr.ConstraintName)
		case pgNotNullViolation:
			return Wrap(err, ErrCodeRequiredFieldMissing, "required field missing").
				WithDetail("field", pgErr.ColumnName)
		case pgCheckViolation:
			return Wrap(err, ErrCodeValidationFailed, "value rejected by constraint")
		}
		return Internal(err, "database error")
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Wrap(err, ErrCodeTokenExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return Wrap(err, ErrCodeInvalidToken, "invalid token")
	}

	if isUnavailable(err) {
		return ServiceUnavailable(err, "backing service unavailable")
	}
	return Internal(err, "internal error")
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
