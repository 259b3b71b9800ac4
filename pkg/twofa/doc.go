// Package twofa provides TOTP two-factor enrolment for identities.
//
// Enrolment is two steps. Enable generates a secret and stores it with the
// enabled flag off, returning the otpauth URL an authenticator app scans.
// The first code accepted by Verify turns the flag on; after that Verify
// simply checks codes.
//
//	service := twofa.NewTwoFaService(repo, twofa.WithIssuer("LMS"))
//	secret, url, err := service.Enable(ctx, identityID)
//	...
//	err = service.Verify(ctx, identityID, "123456")
package twofa
