package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-perfiles/internal/config"
	"ms-perfiles/internal/logger"
)

const maxConnectAttempts = 5

// Open connects to one store and returns a pooled bun handle. Postgres
// connections are retried a few times because the database usually starts
// alongside the service.
func Open(ctx context.Context, cfg config.DatabaseConfig, dsn string, log *logger.Logger) (*bun.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows a single writer; one connection keeps in-memory
		// databases shared and transactions serialized.
		sqldb.SetMaxOpenConns(1)
		log.LogDatabase("CONNECT", "sqlite", "connection opened")
		return bun.NewDB(sqldb, sqlitedialect.New()), nil

	case config.DriverPostgres:
		var sqldb *sql.DB
		var err error
		for i := 0; i < maxConnectAttempts; i++ {
			log.LogDatabase("CONNECT", "postgres", fmt.Sprintf("attempt %d/%d", i+1, maxConnectAttempts))
			sqldb, err = sql.Open("postgres", dsn)
			if err == nil {
				if err = sqldb.PingContext(ctx); err == nil {
					break
				}
				sqldb.Close()
			}
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			if i < maxConnectAttempts-1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxConnectAttempts, err)
		}

		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

		log.LogDatabase("CONNECT", "postgres", "connection successful")
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
