// seed registers development accounts for local testing.
// Idempotent: accounts whose username or email already exist are skipped.
package main

import (
	"context"
	"errors"
	"log"

	"devicebound-auth/backend/internal/config"
	"devicebound-auth/backend/internal/db"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/store"
)

const devPassword = "Password123"

var devAccounts = []identityservice.RegisterInput{
	{Username: "dev", Email: "dev@example.com", Password: devPassword},
	// Bound to a legacy fingerprint so the single-token scheme can be exercised.
	{Username: "legacy_dev", Email: "legacy@example.com", Password: devPassword, LegacyFingerprint: "dev-browser-fingerprint"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	signer, err := security.LoadLegacySigner(cfg.LegacyJWTSecret, cfg.LegacyJWTPrivateKey, cfg.LegacyJWTPublicKey, "devicebound-auth", cfg.LegacyTokenLifetime())
	if err != nil {
		log.Fatalf("legacy signer: %v", err)
	}
	auth := identityservice.NewAuthService(identityservice.Deps{
		Store:              store.NewPostgres(pool),
		Hasher:             security.NewHasher(cfg.BcryptCost),
		Signer:             signer,
		LegacyLoginEnabled: true,
	})

	for _, in := range devAccounts {
		res, err := auth.Register(ctx, in)
		switch {
		case errors.Is(err, identityservice.ErrUsernameOrEmailTaken):
			log.Printf("seed: %s already exists, skipping", in.Username)
		case err != nil:
			log.Fatalf("seed: register %s: %v", in.Username, err)
		default:
			log.Printf("seed: created %s (%s) password %q", res.User.Username, res.User.ID, devPassword)
		}
	}
}
