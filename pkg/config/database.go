package config

import "fmt"

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `env:"IDM_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"IDM_PG_PORT" env-default:"5432"`
	Database string `env:"IDM_PG_DATABASE" env-default:"lms_auth"`
	User     string `env:"IDM_PG_USER" env-default:"lms"`
	Password string `env:"IDM_PG_PASSWORD" env-default:"pwd"`
	SSLMode  string `env:"IDM_PG_SSLMODE" env-default:"disable"`
}

func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
