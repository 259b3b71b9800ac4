package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	AppEnv         string `env:"APP_ENV" env-default:"development"`
	HTTPAddr       string `env:"HTTP_ADDR" env-default:":4000"`
	FrontendURL    string `env:"FRONTEND_URL" env-default:"http://localhost:3000"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000"`

	Token     TokenConfig
	Login     LoginConfig
	Password  PasswordConfig
	Session   SessionConfig
	Database  DatabaseConfig
	SAML      SAMLConfig
	OIDC      OIDCConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

// Load reads the configuration from environment variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Environment() Environment {
	switch Environment(strings.ToLower(c.AppEnv)) {
	case EnvProduction, "prod":
		return EnvProduction
	case EnvTest:
		return EnvTest
	default:
		return EnvDevelopment
	}
}

func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Validate rejects settings that are unsafe to run with.
func (c Config) Validate() error {
	if c.Token.AccessSecret == "" || c.Token.RefreshSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if c.Token.AccessSecret == c.Token.RefreshSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if c.Environment().IsProduction() && len(c.Token.AccessSecret) < 32 {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least 32 bytes in production")
	}
	if c.Login.MaxFailedAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_FAILED_ATTEMPTS must be positive")
	}
	if c.Password.MinLength < 8 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 8")
	}
	return nil
}
