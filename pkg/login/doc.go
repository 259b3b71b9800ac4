// Package login implements local credential authentication and the account
// lifecycle around it: registration, email verification, password reset,
// password change and token refresh.
//
// Authenticate never reveals whether an email is registered. Unknown
// accounts, SSO-only accounts and wrong passwords all fail with
// INVALID_CREDENTIALS, and an unknown account still spends one hash
// comparison. Account status is checked only after the password matches.
//
// Failed attempts are counted through the lockout tracker. Reaching the
// threshold locks the account; while locked, even the correct password
// fails with ACCOUNT_LOCKED.
package login
