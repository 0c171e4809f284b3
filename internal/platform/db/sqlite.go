package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the SQLite database at path and applies the
// bundled schema. ":memory:" gives a private in-process database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// SQLite serializes writers; one connection also keeps an in-memory
	// database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	migrations, err := loadMigrations(sqliteSchema())
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, mig := range migrations {
		if _, err := db.ExecContext(ctx, mig.SQL); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply sqlite schema %s: %w", mig.Name, err)
		}
	}

	return db, nil
}
