package storage

import "github.com/julianstephens/planmate/internal/prefs"

// Provider is a preference backend with a lifecycle.
type Provider interface {
	prefs.Store

	// Init creates the database if needed and applies migrations.
	Init() error
	// Load opens an initialized database and validates its schema version.
	Load() error
	Close() error

	// MigrationStatus reports current/latest schema versions.
	MigrationStatus() (current, latest int, err error)
	// Migrate applies pending migrations, reporting progress through logFn.
	Migrate(logFn func(string)) (int, error)

	// GetConfigPath returns a non-sensitive identifier for the backend.
	GetConfigPath() string
}
