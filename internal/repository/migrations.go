package repository

import (
	"database/sql"
	"fmt"
	"os"
)

// schemaPath is resolved against the daemon working directory.
const schemaPath = "./internal/repository/migrations/schema.sql"

// RunMigrations applies the idempotent schema on startup. Every statement
// in it is IF NOT EXISTS, so re-running against a populated database is
// safe.
func RunMigrations(db *sql.DB) error {
	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaPath, err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
