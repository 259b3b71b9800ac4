package sso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tendant/lms-auth/pkg/errors"
)

func testCertificatePEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.gov"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func newTestSAML(t *testing.T) *SAMLProvider {
	t.Helper()
	p, err := NewSAMLProvider(SAMLOptions{
		EntryPoint:     "https://idp.example.gov/sso",
		IdPIssuer:      "https://idp.example.gov",
		IdPCertificate: testCertificatePEM(t),
		SPIssuer:       "lms-auth",
		CallbackURL:    "https://lms.example.gov/auth/sso/saml/callback",
		AudienceURI:    "lms-auth",
	})
	require.NoError(t, err)
	return p
}

func TestNewSAMLProviderValidatesConfig(t *testing.T) {
	_, err := NewSAMLProvider(SAMLOptions{IdPCertificate: "x"})
	assert.Error(t, err)

	_, err = NewSAMLProvider(SAMLOptions{EntryPoint: "https://idp.example.gov/sso"})
	assert.Error(t, err)

	_, err = NewSAMLProvider(SAMLOptions{EntryPoint: "https://idp.example.gov/sso", IdPCertificate: "not a cert"})
	assert.Error(t, err)

	// bare base64 body without PEM armour
	pemCert := testCertificatePEM(t)
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(pemCert), "-----BEGIN CERTIFICATE-----"), "-----END CERTIFICATE-----"))
	_, err = NewSAMLProvider(SAMLOptions{EntryPoint: "https://idp.example.gov/sso", IdPCertificate: body})
	assert.NoError(t, err)
}

func TestSAMLLoginURL(t *testing.T) {
	p := newTestSAML(t)
	assert.Equal(t, "saml", p.Name())

	raw, err := p.LoginURL("relay-1")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.gov", u.Host)
	assert.NotEmpty(t, u.Query().Get("SAMLRequest"))
	assert.Equal(t, "relay-1", u.Query().Get("RelayState"))
}

func TestSAMLCallbackRejectsBadResponses(t *testing.T) {
	p := newTestSAML(t)

	post := func(form url.Values) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/auth/sso/saml/callback", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}
	read := func(form url.Values) CallbackData {
		cb, err := ReadCallback(post(form))
		require.NoError(t, err)
		return cb
	}

	_, err := p.Callback(context.Background(), read(url.Values{}))
	assert.ErrorIs(t, err, apperrors.ErrRequiredFieldMissing)

	garbage := base64.StdEncoding.EncodeToString([]byte("<not-a-saml-response/>"))
	_, err = p.Callback(context.Background(), read(url.Values{"SAMLResponse": {garbage}}))
	assert.Error(t, err)

	reg := NewRegistry(time.Second, p)
	_, err = reg.Assert(context.Background(), p, post(url.Values{"SAMLResponse": {garbage}}))
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestSAMLMetadata(t *testing.T) {
	md, err := newTestSAML(t).Metadata()
	require.NoError(t, err)
	s := string(md)
	assert.Contains(t, s, "lms-auth")
	assert.Contains(t, s, "https://lms.example.gov/auth/sso/saml/callback")
}

func TestAttributeMappingPrefersFirstName(t *testing.T) {
	attrs := map[string]string{
		"mail":  "first.last@agency.gov",
		"sn":    "Last",
		"title": "Analyst",
		"ou":    "Training",
	}
	var a Assertion
	DefaultSAMLMapping.apply(&a, func(n string) string { return attrs[n] })
	assert.Equal(t, "first.last@agency.gov", a.Email)
	assert.Equal(t, "Last", a.LastName)
	assert.Equal(t, "Analyst", a.JobTitle)
	assert.Equal(t, "Training", a.Department)
	assert.Empty(t, a.FirstName)

	assert.True(t, looksLikeEmail("a@b.gov"))
	assert.False(t, looksLikeEmail("opaque-id"))
	assert.False(t, looksLikeEmail("a@b@c"))
}
