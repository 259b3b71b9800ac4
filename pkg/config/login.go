package config

import "time"

// LoginConfig controls account lockout.
type LoginConfig struct {
	MaxFailedAttempts int    `env:"LOGIN_MAX_FAILED_ATTEMPTS" env-default:"5"`
	LockoutDuration   string `env:"LOGIN_LOCKOUT_DURATION" env-default:"30m"`
}

func (l LoginConfig) LockoutTTL() time.Duration {
	return mustDuration(l.LockoutDuration, 30*time.Minute)
}

// PasswordConfig controls password policy and hashing.
type PasswordConfig struct {
	MinLength int `env:"PASSWORD_MIN_LENGTH" env-default:"12"`
	// HashCost of zero selects the environment default.
	HashCost    int `env:"PASSWORD_HASH_COST" env-default:"0"`
	HashWorkers int `env:"PASSWORD_HASH_WORKERS" env-default:"4"`
}

// EffectiveHashCost returns the bcrypt cost, higher in production.
func (p PasswordConfig) EffectiveHashCost(env Environment) int {
	if p.HashCost > 0 {
		return p.HashCost
	}
	if env.IsProduction() {
		return 12
	}
	return 10
}
