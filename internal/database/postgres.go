package database

import (
	"context"
	"fmt"

	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgBouncerPort is the transaction pooler port of hosted Postgres (Supabase).
const pgBouncerPort = 6543

// poolConfig parses databaseURL and sizes the pool. Behind PgBouncer in
// transaction mode prepared statements are unavailable, so statement
// descriptions are cached instead unless the URL sets
// default_query_exec_mode explicitly.
func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2
	if config.ConnConfig.Port == pgBouncerPort && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		logger.Debugf("postgres: cache_describe mode for PgBouncer on port %d", pgBouncerPort)
	}
	return config, nil
}

// CreateConnectionPool opens and pings a pgx pool.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
