package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrUnknownMigration is returned by Migrate when the database records a
	// schema version missing from the migration set.
	ErrUnknownMigration = errors.New("database: schema is newer than this build")

	// ErrDuplicateMigration is returned when two migration files share a
	// version.
	ErrDuplicateMigration = errors.New("database: duplicate migration version")
)
