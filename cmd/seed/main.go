// Command seed loads the development clinic into the configured store and
// prints access tokens for its mock accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/config"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/database"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/repository"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/profiles"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/seed"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/tokens"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed access tokens")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3, time.Second)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}

	store, closeStore, err := repository.Open(ctx, cfg, mongoClient)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer closeStore()

	var profileRepo profiles.Repository = profiles.NewMemoryRepository()
	if mongoClient != nil {
		profileRepo = profiles.NewMongoRepository(mongoClient.Database(cfg.MongoDB.Database))
	} else {
		logger.Warnf("MONGODB_URI not set; profiles are seeded in memory only")
	}

	n, err := seed.Run(ctx, profileRepo, service.New(store, nil))
	if err != nil {
		logger.Fatalf("seed failed: %v", err)
	}
	fmt.Printf("seeded clinic %s (%d new documents, driver=%s)\n", seed.ClinicID, n, cfg.Store.Driver)

	if cfg.JWT.Secret == "" {
		fmt.Println("JWT_SECRET not set; no tokens printed")
		return
	}
	emails := make([]string, 0, len(seed.MockUsers))
	for email := range seed.MockUsers {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		u := seed.MockUsers[email]
		sess, _ := seed.MockLogin(email, u.Password)
		tok, err := tokens.GenerateAccessToken(cfg.JWT.Secret, sess, *tokenTTL)
		if err != nil {
			logger.Fatalf("token for %s: %v", email, err)
		}
		fmt.Printf("%-8s %s\n  %s\n", sess.Role, email, tok)
	}
}
