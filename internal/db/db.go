package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"market-chat/internal/logger"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Connect opens the database for driver ("postgres" or "sqlite") and runs
// migrations.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if driver == "sqlite" {
		// SQLite has one writer; a single connection keeps transactions
		// from failing with SQLITE_BUSY instead of waiting.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := runMigrations(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB, d dialect) error {
	if _, err := db.ExecContext(ctx, d.migrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, m := range migrations {
		version := i + 1
		var applied bool
		if err := db.GetContext(ctx, &applied, db.Rebind(`SELECT COUNT(*) > 0 FROM schema_migrations WHERE version = ?`), version); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if applied {
			continue
		}

		stmt := m.postgres
		if d.name == "sqlite" {
			stmt = m.sqlite
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		if _, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`), version, m.name); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		logger.Info().Int("version", version).Str("name", m.name).Msg("migration applied")
	}
	return nil
}
