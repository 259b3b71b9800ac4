package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/lms-auth/pkg/config"
	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/password"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	Database config.DatabaseConfig
	Password config.PasswordConfig
}

func main() {
	email := flag.String("email", "", "Email for the new identity (required)")
	pw := flag.String("password", "", "Password for the new identity (required)")
	roleName := flag.String("role", string(identity.RoleAdmin), "Role to assign")
	clearance := flag.String("clearance", string(identity.ClearancePublic), "Security clearance")
	organization := flag.String("organization", "", "Organization")
	firstName := flag.String("first-name", "", "Given name")
	lastName := flag.String("last-name", "", "Family name")
	flag.Parse()

	if *email == "" || *pw == "" {
		fmt.Println("Error: email and password are required")
		flag.Usage()
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	})))

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	role := identity.Role(strings.ToLower(*roleName))
	if !role.Valid() {
		slog.Error("Unknown role", "role", *roleName)
		os.Exit(1)
	}
	level := identity.Clearance(strings.ToLower(*clearance))
	if _, ok := level.Rank(); !ok {
		slog.Error("Unknown clearance", "clearance", *clearance)
		os.Exit(1)
	}

	policy := password.DefaultPolicy()
	policy.MinLength = cfg.Password.MinLength
	if violations := policy.Check(*pw); len(violations) > 0 {
		slog.Error("Password does not meet policy", "violations", violations)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
	if err != nil {
		slog.Error("Failed creating dbpool", "db", cfg.Database.Database, "host", cfg.Database.Host, "port", cfg.Database.Port, "user", cfg.Database.User)
		os.Exit(1)
	}
	defer pool.Close()

	env := config.Config{AppEnv: cfg.AppEnv}.Environment()
	hasher := password.NewHasher(cfg.Password.EffectiveHashCost(env), 1)
	hash, err := hasher.Hash(ctx, *pw)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		os.Exit(1)
	}

	i := identity.NewIdentity(*email)
	i.PasswordHash = hash
	i.Role = role
	i.Clearance = level
	i.Status = identity.StatusActive
	i.EmailVerified = true
	i.Organization = *organization
	i.FirstName = *firstName
	i.LastName = *lastName

	slog.Info("Creating identity", "email", i.Email, "role", role)
	created, err := identity.NewPostgresRepository(pool).Create(ctx, i)
	if err != nil {
		slog.Error("Failed to create identity", "error", err)
		os.Exit(1)
	}
	slog.Info("Identity created successfully", "identity", created)
}
