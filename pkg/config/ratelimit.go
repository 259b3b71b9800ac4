package config

import "time"

// RateLimitConfig limits auth requests per client IP and per identity.
type RateLimitConfig struct {
	Enabled           bool    `env:"RATELIMIT_ENABLED" env-default:"true"`
	RequestsPerSecond float64 `env:"RATELIMIT_RPS" env-default:"1"`
	Burst             int     `env:"RATELIMIT_BURST" env-default:"10"`
	PerUser           bool    `env:"RATELIMIT_PER_USER" env-default:"true"`
	UserBurst         int     `env:"RATELIMIT_USER_BURST" env-default:"20"`
	TTL               string  `env:"RATELIMIT_TTL" env-default:"10m"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `env:"TRUST_PROXY" env-default:"false"`
}

func (r RateLimitConfig) TTLDuration() time.Duration {
	return mustDuration(r.TTL, 10*time.Minute)
}
