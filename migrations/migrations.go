// Package migrations embeds the PostgreSQL schema migrations so the migrate
// binary and integration tests share one source of truth.
package migrations

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Registers the postgres:// database driver.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

// FS holds the up and down migration files.
//
//go:embed *.sql
var FS embed.FS

// New returns a migrator for the database at dsn using the embedded files.
//
// Precondition: dsn must be a postgres:// URL.
// Postcondition: The caller must Close the returned migrator.
func New(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(FS, ".")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}
