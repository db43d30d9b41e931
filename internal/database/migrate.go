package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"studyroom/internal/migrations"
	"studyroom/internal/security"
)

// Migrate brings the schema of an existing database file up to date and
// returns the versions it applied. Unlike New it refuses to create the file.
func Migrate(ctx context.Context, dbPath string) ([]string, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database file not found: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	applied, err := migrations.Run(ctx, db)
	if err != nil {
		return applied, fmt.Errorf("failed to migrate database: %w", err)
	}
	return applied, nil
}
