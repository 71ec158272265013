package repository

import (
	"context"
	"errors"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/config"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/database"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection is the Mongo collection holding clinic documents.
const Collection = "clinic_documents"

// Open returns the Store selected by cfg.Store.Driver and a cleanup func.
// mongoClient is required for the mongo driver.
func Open(ctx context.Context, cfg *config.Config, mongoClient *mongo.Client) (Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		if mongoClient == nil {
			return nil, nil, errors.New("mongo driver selected without a MongoDB connection")
		}
		repo, err := NewMongoRepo(ctx, mongoClient.Database(cfg.MongoDB.Database).Collection(Collection))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case config.DriverPostgres:
		pool, err := database.CreateConnectionPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		repo := NewPostgresRepo(pool, cfg.Postgres.TablePrefix)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		logger.Warnf("using in-memory document store; data is lost on restart")
		return NewMemoryRepo(), func() {}, nil
	}
}
