package sso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"math/big"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

const SAMLProviderName = "saml"

type SAMLOptions struct {
	// EntryPoint is the IdP single sign-on URL.
	EntryPoint string
	IdPIssuer  string
	// IdPCertificate is the PEM encoded certificate the IdP signs with.
	IdPCertificate string
	SPIssuer       string
	CallbackURL    string
	AudienceURI    string
	// SPCertificate and SPPrivateKey are the PEM encoded key pair published
	// in the metadata. A throwaway pair is generated when they are empty.
	SPCertificate string
	SPPrivateKey  string
	Mapping       AttributeMapping
}

// SAMLProvider implements SAML 2.0 SSO with the HTTP-POST binding.
type SAMLProvider struct {
	sp      *saml2.SAMLServiceProvider
	mapping AttributeMapping
}

func NewSAMLProvider(opts SAMLOptions) (*SAMLProvider, error) {
	if opts.EntryPoint == "" {
		return nil, fmt.Errorf("SAML entry point is required")
	}
	cert, err := parseCertificate(opts.IdPCertificate)
	if err != nil {
		return nil, fmt.Errorf("IdP certificate: %w", err)
	}
	mapping := opts.Mapping
	if len(mapping.Email) == 0 {
		mapping = DefaultSAMLMapping
	}

	keyStore, err := spKeyStore(opts)
	if err != nil {
		return nil, err
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      opts.EntryPoint,
		IdentityProviderIssuer:      opts.IdPIssuer,
		ServiceProviderIssuer:       opts.SPIssuer,
		AssertionConsumerServiceURL: opts.CallbackURL,
		AudienceURI:                 opts.AudienceURI,
		IDPCertificateStore:         &dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}},
		SPKeyStore:                  keyStore,
	}
	return &SAMLProvider{sp: sp, mapping: mapping}, nil
}

// parseCertificate accepts a PEM block or the bare base64 body IdP
// metadata usually carries.
func parseCertificate(s string) (*x509.Certificate, error) {
	if s == "" {
		return nil, fmt.Errorf("certificate is required")
	}
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		block, _ = pem.Decode([]byte("-----BEGIN CERTIFICATE-----\n" + s + "\n-----END CERTIFICATE-----\n"))
	}
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func spKeyStore(opts SAMLOptions) (dsig.X509KeyStore, error) {
	if opts.SPCertificate == "" && opts.SPPrivateKey == "" {
		return ephemeralKeyStore(opts.SPIssuer)
	}
	cert, err := parseCertificate(opts.SPCertificate)
	if err != nil {
		return nil, fmt.Errorf("SP certificate: %w", err)
	}
	block, _ := pem.Decode([]byte(opts.SPPrivateKey))
	if block == nil {
		return nil, fmt.Errorf("failed to decode SP private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, perr := x509.ParsePKCS8PrivateKey(block.Bytes)
		if perr != nil {
			return nil, fmt.Errorf("failed to parse SP private key: %w", perr)
		}
		var ok bool
		if key, ok = parsed.(*rsa.PrivateKey); !ok {
			return nil, fmt.Errorf("SP private key is not RSA")
		}
	}
	return &dsig.TLSCertKeyStore{PrivateKey: key, Certificate: [][]byte{cert.Raw}}, nil
}

func ephemeralKeyStore(commonName string) (dsig.X509KeyStore, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate SP key: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create SP certificate: %w", err)
	}
	return &dsig.TLSCertKeyStore{PrivateKey: key, Certificate: [][]byte{der}}, nil
}

func (p *SAMLProvider) Name() string { return SAMLProviderName }

func (p *SAMLProvider) LoginURL(state string) (string, error) {
	u, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build SAML auth URL: %w", err)
	}
	return u, nil
}

// Callback validates the POSTed SAMLResponse. The response signature,
// audience and validity window must all check out. RelayState is not bound
// to a cookie, since the IdP posts cross-site and IdP-initiated logins
// carry none.
func (p *SAMLProvider) Callback(ctx context.Context, cb CallbackData) (Assertion, error) {
	encoded := cb.Form.Get("SAMLResponse")
	if encoded == "" {
		return Assertion{}, apperrors.RequiredFieldMissing("SAMLResponse")
	}

	info, err := p.sp.RetrieveAssertionInfo(encoded)
	if err != nil {
		return Assertion{}, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		switch {
		case info.WarningInfo.InvalidTime:
			return Assertion{}, fmt.Errorf("assertion has invalid time")
		case info.WarningInfo.NotInAudience:
			return Assertion{}, fmt.Errorf("assertion not in expected audience")
		}
	}

	a := Assertion{NameID: info.NameID, SessionIndex: info.SessionIndex}
	p.mapping.apply(&a, info.Values.Get)
	if a.Email == "" && looksLikeEmail(info.NameID) {
		a.Email = info.NameID
	}
	return a, nil
}

// Metadata returns the service provider metadata document.
func (p *SAMLProvider) Metadata() ([]byte, error) {
	md, err := p.sp.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata: %w", err)
	}
	out, err := xml.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func looksLikeEmail(s string) bool {
	at := -1
	for i, c := range s {
		if c == '@' {
			if at >= 0 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(s)-1
}
