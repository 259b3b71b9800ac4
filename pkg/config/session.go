package config

import "time"

// SessionConfig holds the Redis-backed session store settings.
type SessionConfig struct {
	RedisAddr       string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" env-default:"0"`
	KeyPrefix       string `env:"SESSION_KEY_PREFIX" env-default:"lms:sess:"`
	IdleTimeout     string `env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
	AbsoluteTimeout string `env:"SESSION_ABSOLUTE_TIMEOUT" env-default:"24h"`
	// CookieSecure forces the Secure flag outside production.
	CookieSecure bool `env:"SESSION_COOKIE_SECURE" env-default:"false"`
}

func (s SessionConfig) IdleTTL() time.Duration {
	return mustDuration(s.IdleTimeout, 30*time.Minute)
}

func (s SessionConfig) AbsoluteTTL() time.Duration {
	return mustDuration(s.AbsoluteTimeout, 24*time.Hour)
}

// SecureCookie reports whether the session cookie must be Secure.
func (s SessionConfig) SecureCookie(env Environment) bool {
	return s.CookieSecure || env.IsProduction()
}
