// Package password validates candidate passwords against the platform
// policy, scores their strength and hashes them with bcrypt.
package password
