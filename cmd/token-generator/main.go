// Command token-generator mints JWT access tokens for local API testing.
//
// Usage:
//
//	INVOICE_AUTH_JWT_SECRET=... go run ./cmd/token-generator [-admin] [-user <uuid>]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/PPS-H/Invoice-manager-backend/internal/config"
	"github.com/PPS-H/Invoice-manager-backend/internal/service/auth"
	"github.com/google/uuid"
)

func main() {
	var (
		admin   = flag.Bool("admin", false, "mint a token with the admin claim")
		rawUser = flag.String("user", "", "user UUID to mint the token for (default: random)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	userID := uuid.New()
	if *rawUser != "" {
		userID, err = uuid.Parse(*rawUser)
		if err != nil {
			log.Fatalf("invalid user UUID %q: %v", *rawUser, err)
		}
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		log.Fatalf("failed to initialize JWT service: %v", err)
	}

	token, err := jwtService.GenerateToken(context.Background(), userID, *admin)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	fmt.Printf("User:  %s\nAdmin: %v\nToken: %s\n", userID, *admin, token)
}
