package strategy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/sessions"
	"github.com/tendant/lms-auth/pkg/sso"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
)

type countingStore struct {
	*identity.InMemoryRepository
	reads atomic.Int32
}

func (c *countingStore) FindByID(ctx context.Context, id uuid.UUID) (identity.Identity, error) {
	c.reads.Add(1)
	return c.InMemoryRepository.FindByID(ctx, id)
}

type fixture struct {
	repo       *countingStore
	tokens     *tokengenerator.JwtService
	sessions   *sessions.Store
	dispatcher *Dispatcher
	active     identity.Identity
	suspended  identity.Identity
	failures   []string
}

type passwords map[string]string

func (p passwords) Authenticate(_ context.Context, email, pw string) (identity.Identity, error) {
	if want, ok := p[email]; ok && want == pw {
		return identity.Identity{ID: uuid.New(), Email: email, Role: identity.RoleStudent, Status: identity.StatusActive, PasswordHash: "x"}, nil
	}
	return identity.Identity{}, apperrors.InvalidCredentials()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{repo: &countingStore{InMemoryRepository: identity.NewInMemoryRepository()}}

	active := identity.NewIdentity("active@example.gov")
	active.Status = identity.StatusActive
	var err error
	f.active, err = f.repo.Create(ctx, active)
	require.NoError(t, err)
	suspended := identity.NewIdentity("suspended@example.gov")
	suspended.Status = identity.StatusSuspended
	f.suspended, err = f.repo.Create(ctx, suspended)
	require.NoError(t, err)

	f.tokens, err = tokengenerator.NewJwtService("access-secret-strategy-tests-000", "refresh-secret-strategy-tests-111", "lms-auth", "lms")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.sessions = sessions.NewStore(client)

	resolver := NewResolver(f.repo)
	f.dispatcher = NewDispatcher([]Strategy{
		NewLocalStrategy(passwords{"active@example.gov": "right"}, nil),
		NewBearerStrategy(f.tokens, resolver),
		NewSessionStrategy(f.sessions, resolver),
	}, WithFailureHook(func(_ *http.Request, name string, _ error) {
		f.failures = append(f.failures, name)
	}))
	return f
}

func (f *fixture) serve(r *http.Request, names ...string) (*httptest.ResponseRecorder, *auth.AuthUser) {
	var got *auth.AuthUser
	h := f.dispatcher.Require(names...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec, got
}

func (f *fixture) bearer(t *testing.T, i identity.Identity, typ tokengenerator.TokenType) *http.Request {
	t.Helper()
	token, _, err := f.tokens.Issue(i, typ)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestBearer(t *testing.T) {
	f := newFixture(t)

	rec, user := f.serve(f.bearer(t, f.active, tokengenerator.AccessToken), Bearer)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, f.active.ID, user.Identity.ID)
	assert.Equal(t, Bearer, user.Strategy)

	rec, _ = f.serve(f.bearer(t, f.active, tokengenerator.RefreshToken), Bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "WRONG_TOKEN_TYPE")

	rec, _ = f.serve(f.bearer(t, f.suspended, tokengenerator.AccessToken), Bearer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_NOT_ACTIVE")

	ghost := identity.NewIdentity("ghost@example.gov")
	rec, _ = f.serve(f.bearer(t, ghost, tokengenerator.AccessToken), Bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerMissingOrMalformed(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.serve(httptest.NewRequest(http.MethodGet, "/", nil), Bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec, _ = f.serve(r, Bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not.a.jwt")
	rec, _ = f.serve(r, Bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestLockedIdentityRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.repo.RegisterFailedLogin(ctx, f.active.ID, 5, time.Hour, time.Now())
		require.NoError(t, err)
	}
	rec, _ := f.serve(f.bearer(t, f.active, tokengenerator.AccessToken), Bearer)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSessionStrategy(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.Create(context.Background(), f.active)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: sess.ID})
	rec, user := f.serve(r, Session)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, sess.ID, user.SessionID)
	assert.Equal(t, Session, user.Strategy)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: "unknown"})
	rec, _ = f.serve(r, Session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderAndFallback(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.Create(context.Background(), f.active)
	require.NoError(t, err)

	// no bearer header: the session cookie is used
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: sess.ID})
	rec, user := f.serve(r, Bearer, Session)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, Session, user.Strategy)
	assert.Empty(t, f.failures)

	// a presented bearer token that fails is final even with a valid cookie
	for _, header := range []string{
		"Bearer garbage",
		"Basic dXNlcjpwYXNz",
		"Bearer " + mustIssue(t, f.tokens, f.active, tokengenerator.RefreshToken),
	} {
		r = httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", header)
		r.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: sess.ID})
		rec, user = f.serve(r, Bearer, Session)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Nil(t, user)
	}
	assert.Equal(t, []string{Bearer, Bearer, Bearer}, f.failures)

	// every strategy skipped
	rec, _ = f.serve(httptest.NewRequest(http.MethodGet, "/", nil), Bearer, Session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestBearerUsesClaimSnapshot(t *testing.T) {
	f := newFixture(t)

	// token issued while the identity held other attributes than the store has now
	snapshot := f.active
	snapshot.Role = identity.RoleInstructor
	snapshot.Organization = "DOE"
	snapshot.Clearance = identity.ClearanceSecret
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+mustIssue(t, f.tokens, snapshot, tokengenerator.AccessToken))

	rec, user := f.serve(r, Bearer)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, identity.RoleInstructor, user.Identity.Role)
	assert.Equal(t, "DOE", user.Identity.Organization)
	assert.Equal(t, identity.ClearanceSecret, user.Identity.Clearance)
	assert.Equal(t, f.active.Email, user.Identity.Email)
}

func mustIssue(t *testing.T, tokens *tokengenerator.JwtService, i identity.Identity, typ tokengenerator.TokenType) string {
	t.Helper()
	token, _, err := tokens.Issue(i, typ)
	require.NoError(t, err)
	return token
}

func TestIdentityReadOncePerRequest(t *testing.T) {
	f := newFixture(t)
	resolver := NewResolver(f.repo)

	ctx := WithRequestCache(context.Background())
	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(ctx, f.active.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.repo.reads.Load())

	_, err := resolver.Resolve(context.Background(), f.active.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.repo.reads.Load())
}

func TestLocalStrategy(t *testing.T) {
	f := newFixture(t)
	post := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	}

	rec, user := f.serve(post(`{"email":"active@example.gov","password":"right"}`), Local)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, user)
	assert.Empty(t, user.Identity.PasswordHash)

	rec, _ = f.serve(post(`{"email":"active@example.gov","password":"wrong"}`), Local)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")

	rec, _ = f.serve(post(`not json`), Local)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type codes map[uuid.UUID]string

func (c codes) Verify(_ context.Context, id uuid.UUID, code string) error {
	if c[id] == code {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeInvalidCredentials, "invalid two-factor code")
}

type twoFactorUser struct{ id uuid.UUID }

func (u twoFactorUser) Authenticate(context.Context, string, string) (identity.Identity, error) {
	return identity.Identity{ID: u.id, Status: identity.StatusActive, TwoFactorEnabled: true}, nil
}

func TestLocalStrategyTwoFactor(t *testing.T) {
	id := uuid.New()
	s := NewLocalStrategy(twoFactorUser{id: id}, codes{id: "123456"})

	res := s.Authenticate(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.gov","password":"p"}`)))
	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, true, res.Err.Details["two_factor_required"])

	res = s.Authenticate(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.gov","password":"p","code":"000000"}`)))
	assert.Equal(t, OutcomeFailed, res.Outcome)

	res = s.Authenticate(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.gov","password":"p","code":"123456"}`)))
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
}

type stubProvider struct{ a sso.Assertion }

func (p stubProvider) Name() string                    { return "stub" }
func (p stubProvider) LoginURL(string) (string, error) { return "https://idp.example.gov", nil }
func (p stubProvider) Callback(context.Context, sso.CallbackData) (sso.Assertion, error) {
	return p.a, nil
}

func TestSSOStrategy(t *testing.T) {
	repo := identity.NewInMemoryRepository()
	reg := sso.NewRegistry(time.Second, stubProvider{a: sso.Assertion{Email: "new.officer@state.gov", JobTitle: "Officer"}})
	s := NewSSOStrategy(reg, sso.NewMapper(repo))

	router := chi.NewRouter()
	var res Result
	router.Post("/auth/sso/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
		res = s.Authenticate(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/sso/stub/callback", nil))
	require.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "new.officer@state.gov", res.Identity.Email)
	assert.Equal(t, identity.StatusActive, res.Identity.Status)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/sso/nope/callback", nil))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, apperrors.ErrCodeNotFound, res.Err.Code)
}

func TestRequireUnknownStrategyPanics(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() { f.dispatcher.Require("kerberos") })
	assert.Panics(t, func() { f.dispatcher.Require() })
}
