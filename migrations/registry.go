// Package migrations selects the embedded schema for a database dialect and
// hands it to the persistence client.
package migrations

import (
	"fmt"
	"io/fs"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	tiktokshop "github.com/goliatone/go-tiktokshop"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	migrationsDir = "data/sql/migrations"
)

// Registrar is the part of *persistence.Client that takes SQL migrations.
type Registrar interface {
	RegisterSQLMigrations(migrations ...fs.FS) *persistence.Migrations
}

// Source returns the migration files for dialect. Postgres files sit at the
// top of the migrations directory, sqlite variants in its sqlite folder.
func Source(dialect string) (fs.FS, error) {
	dir := migrationsDir
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
	case DialectSQLite:
		dir += "/sqlite"
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	sub, err := fs.Sub(tiktokshop.GetMigrationsFS(), dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}

// Register adds the dialect's migrations to client. Run client.Migrate
// afterwards to apply them.
func Register(client Registrar, dialect string) error {
	if client == nil {
		return fmt.Errorf("migrations: registrar is required")
	}
	source, err := Source(dialect)
	if err != nil {
		return err
	}
	client.RegisterSQLMigrations(source)
	return nil
}
