package config

import "time"

// TokenConfig holds JWT signing configuration. Access and refresh tokens use
// distinct secrets.
type TokenConfig struct {
	AccessSecret            string `env:"JWT_ACCESS_SECRET"`
	RefreshSecret           string `env:"JWT_REFRESH_SECRET"`
	Issuer                  string `env:"JWT_ISSUER" env-default:"lms-auth"`
	Audience                string `env:"JWT_AUDIENCE" env-default:"lms-platform"`
	AccessTokenExpiry       string `env:"ACCESS_TOKEN_EXPIRY" env-default:"1h"`
	RefreshTokenExpiry      string `env:"REFRESH_TOKEN_EXPIRY" env-default:"P7D"`
	PasswordResetExpiry     string `env:"PASSWORD_RESET_TOKEN_EXPIRY" env-default:"1h"`
	EmailVerificationExpiry string `env:"EMAIL_VERIFICATION_TOKEN_EXPIRY" env-default:"24h"`
}

func (t TokenConfig) AccessTTL() time.Duration {
	return mustDuration(t.AccessTokenExpiry, time.Hour)
}

func (t TokenConfig) RefreshTTL() time.Duration {
	return mustDuration(t.RefreshTokenExpiry, 7*24*time.Hour)
}

func (t TokenConfig) PasswordResetTTL() time.Duration {
	return mustDuration(t.PasswordResetExpiry, time.Hour)
}

func (t TokenConfig) EmailVerificationTTL() time.Duration {
	return mustDuration(t.EmailVerificationExpiry, 24*time.Hour)
}
