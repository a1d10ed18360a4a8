// Package migrations embeds SQL migration files into the binary.
//
// This allows VitalSync to run migrations without needing the SQL files
// present on the filesystem - they're compiled into the executable.
//
// Files are grouped by migration set: shared/ holds the source-scoped
// schema applied to every store, canonical/ holds the system-scoped
// schema applied to the canonical store only.
package migrations

import (
	"embed"

	"github.com/vitalone/vitalsync/internal/infrastructure/database"
)

//go:embed canonical/*.sql shared/*.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
}
