package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tendant/lms-auth/pkg/identity"
	"github.com/tendant/lms-auth/pkg/tokengenerator"
)

// tokengen mints a token for local testing against a running service
// configured with the same secrets.
func main() {
	accessSecret := flag.String("access-secret", os.Getenv("JWT_ACCESS_SECRET"), "Access token signing secret")
	refreshSecret := flag.String("refresh-secret", os.Getenv("JWT_REFRESH_SECRET"), "Refresh token signing secret")
	issuer := flag.String("issuer", "lms-auth", "Issuer of the token")
	audience := flag.String("audience", "lms-platform", "Audience of the token")
	subject := flag.String("subject", "", "Identity id (random when empty)")
	email := flag.String("email", "learner@example.gov", "Email claim")
	role := flag.String("role", string(identity.RoleStudent), "Role claim")
	clearance := flag.String("clearance", string(identity.ClearancePublic), "Clearance claim")
	organization := flag.String("organization", "", "Organization claim")
	tokenType := flag.String("type", string(tokengenerator.AccessToken), "Token type: access, refresh, password_reset or email_verification")
	expiry := flag.Duration("expiry", 0, "Token lifetime (default for the type when zero)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	id := uuid.New()
	if *subject != "" {
		parsed, err := uuid.Parse(*subject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: subject must be a UUID: %v\n", err)
			os.Exit(1)
		}
		id = parsed
	}

	t := tokengenerator.TokenType(*tokenType)
	var opts []tokengenerator.Option
	if *expiry > 0 {
		switch t {
		case tokengenerator.AccessToken:
			opts = append(opts, tokengenerator.WithAccessTokenExpiry(*expiry))
		case tokengenerator.RefreshToken:
			opts = append(opts, tokengenerator.WithRefreshTokenExpiry(*expiry))
		case tokengenerator.PasswordResetToken:
			opts = append(opts, tokengenerator.WithPasswordResetExpiry(*expiry))
		case tokengenerator.EmailVerificationToken:
			opts = append(opts, tokengenerator.WithEmailVerificationExpiry(*expiry))
		}
	}

	tokens, err := tokengenerator.NewJwtService(*accessSecret, *refreshSecret, *issuer, *audience, opts...)
	if err != nil {
		slog.Error("Failed to create token service", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tokenStr, expiryTime, err := tokens.Issue(identity.Identity{
		ID:           id,
		Email:        identity.NormalizeEmail(*email),
		Role:         identity.Role(*role),
		Clearance:    identity.Clearance(*clearance),
		Organization: *organization,
	}, t)
	if err != nil {
		slog.Error("Failed to generate token", "err", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "compact":
		fmt.Println(tokenStr)
	case "full":
		fmt.Printf("Token: %s\nSubject: %s\nExpires: %s\n", tokenStr, id, expiryTime.Format(time.RFC3339))
	case "debug":
		claims, err := tokens.Verify(tokenStr, t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to verify generated token: %v\n", err)
			os.Exit(1)
		}
		header, _, err := jwt.NewParser().ParseUnverified(tokenStr, jwt.MapClaims{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to parse generated token: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("=== Token Information ===\n")
		fmt.Printf("Token: %s\n\n", tokenStr)
		fmt.Printf("=== Token Header ===\n")
		headerJSON, _ := json.MarshalIndent(header.Header, "", "  ")
		fmt.Printf("%s\n\n", headerJSON)
		fmt.Printf("=== Token Claims ===\n")
		claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Printf("%s\n\n", claimsJSON)
		fmt.Printf("Expires: %s\n", expiryTime.Format(time.RFC3339))
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
