package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

const OIDCProviderName = "oidc"

type OIDCOptions struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Mapping      AttributeMapping
}

// OIDCProvider implements the OpenID Connect authorization code flow.
type OIDCProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	mapping      AttributeMapping
}

// NewOIDCProvider discovers the issuer's endpoints and keys.
func NewOIDCProvider(ctx context.Context, opts OIDCOptions) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return newOIDCProvider(opts, provider.Endpoint(), provider.Verifier(&oidc.Config{ClientID: opts.ClientID})), nil
}

func newOIDCProvider(opts OIDCOptions, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	mapping := opts.Mapping
	if len(mapping.Email) == 0 {
		mapping = DefaultOIDCMapping
	}
	return &OIDCProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
		},
		verifier: verifier,
		mapping:  mapping,
	}
}

func (p *OIDCProvider) Name() string { return OIDCProviderName }

func (p *OIDCProvider) LoginURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Callback checks state, exchanges the code and verifies the ID token.
func (p *OIDCProvider) Callback(ctx context.Context, cb CallbackData) (Assertion, error) {
	q := cb.Query
	if e := q.Get("error"); e != "" {
		return Assertion{}, fmt.Errorf("identity provider returned error %q", e)
	}
	if err := checkState(cb, q.Get("state")); err != nil {
		return Assertion{}, err
	}
	code := q.Get("code")
	if code == "" {
		return Assertion{}, apperrors.RequiredFieldMissing("code")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Assertion{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Assertion{}, fmt.Errorf("missing id_token in token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Assertion{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return Assertion{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return Assertion{}, fmt.Errorf("identity provider has not verified the email")
	}

	a := Assertion{NameID: idToken.Subject}
	p.mapping.apply(&a, func(name string) string {
		s, _ := claims[name].(string)
		return s
	})
	return a, nil
}
