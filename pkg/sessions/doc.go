// Package sessions stores browser sessions in Redis so any service instance
// can validate a session cookie.
package sessions
