// Package errors defines the failure taxonomy shared by every auth component.
//
// Each failure carries an ErrorCode that is stable across releases and maps
// to one HTTP status:
//
//	err := errors.AccountLocked(until, time.Now())
//	err.HTTPStatusCode() // 423
//
// Low-level errors from pgx, go-redis and golang-jwt are mapped onto the
// taxonomy with Classify; sentinels such as ErrAccountLocked compare by code
// with the standard errors.Is.
package errors
