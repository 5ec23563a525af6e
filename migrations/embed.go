// Package migrations embeds the SQL schema so the binary can migrate a fresh
// database without the .sql files on disk.
//
// Import it for side effects:
//
//	import _ "github.com/nerrad567/gray-logic-iot/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
