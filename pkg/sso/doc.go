// Package sso turns assertions from external identity providers into local
// identities.
//
// A Provider validates what the identity provider sent back (a SAML
// response or an OIDC authorization code) and produces an Assertion. The
// Mapper then creates or updates the identity for the asserted email in
// one atomic upsert. Newly created identities are active, email-verified
// students with public clearance; existing ones only gain non-empty
// profile values.
//
// Provider calls run under a timeout. A timeout, a bad signature or any
// other validation problem rejects the login.
package sso
