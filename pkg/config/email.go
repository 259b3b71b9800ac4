package config

// EmailConfig holds SMTP settings. An empty Host disables outbound mail.
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST"`
	Port     int    `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@lms.example.gov"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}
