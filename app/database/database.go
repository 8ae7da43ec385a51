// Package database opens the bun handle for the configured store driver.
package database

import (
	"database/sql"
	"fmt"

	"github.com/Black-And-White-Club/frolf-guesser/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

// Open connects to the store described by cfg. The caller owns the
// returned handle and must close it.
func Open(cfg config.DatabaseConfig) (*bun.DB, error) {
	var db *bun.DB

	switch cfg.Driver {
	case config.DriverPostgres, "":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())

	case config.DriverPGX:
		pgxCfg, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pgx dsn: %w", err)
		}
		sqldb := stdlib.OpenDB(*pgxCfg)
		db = bun.NewDB(sqldb, pgdialect.New())

	case config.DriverSQLite:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// SQLite allows a single writer; one connection also keeps an
		// in-memory database alive for the life of the handle.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	if cfg.MaxOpenConns > 0 && cfg.Driver != config.DriverSQLite {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}
