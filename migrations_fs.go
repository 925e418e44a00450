package tiktokshop

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the SQL schema for the credential, auth state and
// webhook delivery tables, with sqlite variants under
// data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
