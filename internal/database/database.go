// Package database opens the nestling SQLite database and keeps its schema
// current through embedded migrations.
package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// dsnOptions enables WAL, a 5s busy timeout, and foreign key enforcement.
// The family_members and badge_collections tables rely on the cascades.
const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// Open opens the database at path, verifies the connection, and migrates the
// schema. ":memory:" is accepted for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite has a single writer, and an in-memory database exists per
	// connection. One pooled connection keeps both cases coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
