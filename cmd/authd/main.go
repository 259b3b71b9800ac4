package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/lms-auth/pkg/audit"
	"github.com/tendant/lms-auth/pkg/authapi"
	"github.com/tendant/lms-auth/pkg/config"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/lockout"
	"github.com/tendant/lms-auth/pkg/login"
	"github.com/tendant/lms-auth/pkg/notification"
	"github.com/tendant/lms-auth/pkg/password"
	"github.com/tendant/lms-auth/pkg/ratelimit"
	"github.com/tendant/lms-auth/pkg/response"
	"github.com/tendant/lms-auth/pkg/sessions"
	"github.com/tendant/lms-auth/pkg/sso"
	"github.com/tendant/lms-auth/pkg/strategy"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
	"github.com/tendant/lms-auth/pkg/twofa"
)

func main() {
	loadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Environment())

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Fatal panic", "panic", p, "stack", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	if err := run(cfg); err != nil {
		slog.Error("Auth service stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(env config.Environment) {
	if env.IsProduction() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelInfo,
		})))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})))
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	env := cfg.Environment()
	slog.Info("Starting LMS auth service", "env", env, "addr", cfg.HTTPAddr)

	pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database host=%s database=%s: %w", cfg.Database.Host, cfg.Database.Database, err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", cfg.Session.RedisAddr, err)
	}

	repo := identity.NewPostgresRepository(pool)
	notifier := newNotifier(cfg.Email)

	tokens, err := tokengenerator.NewJwtService(
		cfg.Token.AccessSecret, cfg.Token.RefreshSecret, cfg.Token.Issuer, cfg.Token.Audience,
		tokengenerator.WithAccessTokenExpiry(cfg.Token.AccessTTL()),
		tokengenerator.WithRefreshTokenExpiry(cfg.Token.RefreshTTL()),
		tokengenerator.WithPasswordResetExpiry(cfg.Token.PasswordResetTTL()),
		tokengenerator.WithEmailVerificationExpiry(cfg.Token.EmailVerificationTTL()),
	)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	sessionStore := sessions.NewStore(rdb,
		sessions.WithIdleTimeout(cfg.Session.IdleTTL()),
		sessions.WithAbsoluteTimeout(cfg.Session.AbsoluteTTL()),
		sessions.WithKeyPrefix(cfg.Session.KeyPrefix),
	)

	policy := password.DefaultPolicy()
	policy.MinLength = cfg.Password.MinLength
	hasher := password.NewHasher(cfg.Password.EffectiveHashCost(env), cfg.Password.HashWorkers)
	slog.Info("Password hashing configured", "cost", hasher.Cost(), "workers", cfg.Password.HashWorkers)

	tracker := lockout.NewTracker(repo,
		lockout.WithThreshold(cfg.Login.MaxFailedAttempts),
		lockout.WithDuration(cfg.Login.LockoutTTL()),
		lockout.WithNotifier(notifier),
		lockout.WithResetURL(cfg.FrontendURL+"/forgot-password"),
	)
	loginService := login.NewLoginService(repo, hasher, tokens,
		login.WithPolicy(policy),
		login.WithLockoutTracker(tracker),
		login.WithSessionRevoker(sessionStore),
		login.WithNotifier(notifier),
		login.WithFrontendURL(cfg.FrontendURL),
	)
	twofaService := twofa.NewTwoFaService(repo)

	registry, samlProvider, err := newProviders(ctx, cfg)
	if err != nil {
		return err
	}

	reporter := audit.NewReporter(slog.Default(), prometheus.DefaultRegisterer)
	resolver := strategy.NewResolver(repo)
	dispatcher := strategy.NewDispatcher([]strategy.Strategy{
		strategy.NewLocalStrategy(loginService, twofaService),
		strategy.NewBearerStrategy(tokens, resolver),
		strategy.NewSessionStrategy(sessionStore, resolver),
		strategy.NewSSOStrategy(registry, sso.NewMapper(repo)),
	}, strategy.WithFailureHook(func(r *http.Request, name string, err error) {
		e := audit.FromRequest(r, "authenticate").WithMetadata("strategy", name)
		e.Outcome = audit.OutcomeFailure
		e.Code = apperrors.Classify(err).Code
		reporter.Record(r.Context(), e)
	}))

	limitConfig := ratelimit.DefaultConfig()
	limitConfig.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
	limitConfig.Burst = cfg.RateLimit.Burst
	limitConfig.PerUser = cfg.RateLimit.PerUser
	limitConfig.UserBurst = cfg.RateLimit.UserBurst
	limitConfig.BucketTTL = cfg.RateLimit.TTLDuration()
	limiter := ratelimit.NewMiddleware(limitConfig)
	if cfg.RateLimit.Enabled {
		go limiter.RunCleanup(ctx)
	}

	secure := cfg.Session.SecureCookie(env)
	opts := []authapi.Option{
		authapi.WithLoginService(loginService),
		authapi.WithTwoFaService(twofaService),
		authapi.WithSessionStore(sessionStore),
		authapi.WithDispatcher(dispatcher),
		authapi.WithProviders(registry, samlProvider),
		authapi.WithReporter(reporter),
		authapi.WithFrontendURL(cfg.FrontendURL),
		authapi.WithSecureCookies(secure),
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, authapi.WithRateLimit(limiter))
	}
	handle := authapi.NewHandle(opts...)

	// A recovered panic asks the server to drain and exit.
	shutdown := make(chan struct{})
	var once sync.Once
	triggerShutdown := func() { once.Do(func() { close(shutdown) }) }

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.RateLimit.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(recoverer(triggerShutdown))
	r.Use(reporter.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !env.IsProduction() {
		r.Use(response.Debug)
	}

	r.Get("/healthz", healthz(pool, rdb))
	r.Handle("/metrics", promhttp.Handler())
	handle.Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Auth service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case <-shutdown:
		slog.Warn("Shutting down after recovered panic")
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Auth service stopped")
	return nil
}

func newNotifier(cfg config.EmailConfig) notification.Notifier {
	if cfg.Host == "" {
		slog.Warn("EMAIL_HOST not set, notices are only logged")
		return notification.LogNotifier{}
	}
	n, err := notification.NewEmailNotifier(notification.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		TLS:      cfg.TLS,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
	if err != nil {
		slog.Error("Failed to initialize email notifier, notices are only logged", "error", err)
		return notification.LogNotifier{}
	}
	return n
}

func newProviders(ctx context.Context, cfg config.Config) (*sso.Registry, *sso.SAMLProvider, error) {
	var (
		providers    []sso.Provider
		samlProvider *sso.SAMLProvider
	)
	if cfg.SAML.Enabled() {
		p, err := sso.NewSAMLProvider(sso.SAMLOptions{
			EntryPoint:     cfg.SAML.EntryPoint,
			IdPIssuer:      cfg.SAML.IdPIssuer,
			IdPCertificate: cfg.SAML.IdPCertificate,
			SPIssuer:       cfg.SAML.SPIssuer,
			CallbackURL:    cfg.SAML.CallbackURL,
			AudienceURI:    cfg.SAML.AudienceURI,
			SPCertificate:  cfg.SAML.SPCertificate,
			SPPrivateKey:   cfg.SAML.SPPrivateKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("saml provider: %w", err)
		}
		providers = append(providers, p)
		samlProvider = p
	}
	if cfg.OIDC.Enabled() {
		discoverCtx, cancel := context.WithTimeout(ctx, cfg.SAML.TimeoutDuration())
		defer cancel()
		p, err := sso.NewOIDCProvider(discoverCtx, sso.OIDCOptions{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Scopes:       cfg.OIDC.ScopeList(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("oidc provider: %w", err)
		}
		providers = append(providers, p)
	}
	registry := sso.NewRegistry(cfg.SAML.TimeoutDuration(), providers...)
	slog.Info("SSO providers configured", "providers", registry.Names())
	return registry, samlProvider, nil
}

// recoverer renders a 500 for a panicking handler and asks the process to
// shut down.
func recoverer(shutdown func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				slog.Error("Panic in handler", "panic", p, "path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()), "stack", string(debug.Stack()))
				response.Error(w, r, apperrors.Internal(fmt.Errorf("panic: %v", p), "unexpected failure"))
				shutdown()
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func healthz(pool *pgxpool.Pool, rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.Error(w, r, apperrors.ServiceUnavailable(err, "database unavailable"))
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			response.Error(w, r, apperrors.ServiceUnavailable(err, "session store unavailable"))
			return
		}
		response.JSON(w, r, http.StatusOK, "ok", nil)
	}
}

// loadEnvFile loads environment variables from a .env file next to the
// binary or in the working directory, if one exists.
func loadEnvFile() {
	candidates := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append([]string{filepath.Join(filepath.Dir(execPath), ".env")}, candidates...)
	}
	for _, envFile := range candidates {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("Failed to load .env file", "path", envFile, "error", err)
		}
		return
	}
}
