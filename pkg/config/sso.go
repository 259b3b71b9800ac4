package config

import "time"

// SAMLConfig configures the SAML identity provider. An empty EntryPoint
// disables SAML.
type SAMLConfig struct {
	EntryPoint     string `env:"SAML_ENTRY_POINT"`
	IdPIssuer      string `env:"SAML_IDP_ISSUER"`
	IdPCertificate string `env:"SAML_IDP_CERT"`
	SPIssuer       string `env:"SAML_SP_ISSUER" env-default:"lms-auth"`
	CallbackURL    string `env:"SAML_CALLBACK_URL" env-default:"http://localhost:4000/auth/sso/saml/callback"`
	AudienceURI    string `env:"SAML_AUDIENCE" env-default:"lms-auth"`
	SPCertificate  string `env:"SAML_SP_CERT"`
	SPPrivateKey   string `env:"SAML_SP_KEY"`
	Timeout        string `env:"SSO_TIMEOUT" env-default:"10s"`
}

func (s SAMLConfig) Enabled() bool {
	return s.EntryPoint != "" && s.IdPCertificate != ""
}

func (s SAMLConfig) TimeoutDuration() time.Duration {
	return mustDuration(s.Timeout, 10*time.Second)
}

// OIDCConfig configures an OpenID Connect identity provider. An empty Issuer
// disables OIDC.
type OIDCConfig struct {
	Issuer       string `env:"OIDC_ISSUER"`
	ClientID     string `env:"OIDC_CLIENT_ID"`
	ClientSecret string `env:"OIDC_CLIENT_SECRET"`
	RedirectURL  string `env:"OIDC_REDIRECT_URL" env-default:"http://localhost:4000/auth/sso/oidc/callback"`
	Scopes       string `env:"OIDC_SCOPES" env-default:"openid,email,profile"`
}

func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

func (o OIDCConfig) ScopeList() []string {
	return splitList(o.Scopes)
}
