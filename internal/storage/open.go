package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/keyring"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/storage/postgres"
	"github.com/julianstephens/planmate/internal/storage/sqlite"
)

// ErrEmbeddedCredentials re-exports the Postgres password check for callers.
var ErrEmbeddedCredentials = postgres.ErrEmbeddedCredentials

// Open picks a backend for config. A Postgres URL or DSN selects Postgres;
// anything else is a SQLite file path. When config is the default path, a
// connection string from the environment or the OS keyring takes precedence.
func Open(config string) (Provider, error) {
	if config == "" || config == constants.DefaultConfigPath {
		if conn := os.Getenv(constants.EnvDBConnStr); conn != "" {
			return postgres.New(conn), nil
		}
		if conn, err := keyring.Get(keyring.DatabaseConnection); err == nil {
			return postgres.New(conn), nil
		} else if !errors.Is(err, keyring.ErrNotFound) {
			logger.Debug("keyring lookup skipped", "error", err)
		}
		if config == "" {
			config = constants.DefaultConfigPath
		}
	}

	if postgres.IsConnString(config) {
		if err := postgres.ValidateConnString(config); err != nil {
			return nil, err
		}
		return postgres.New(config), nil
	}

	path, err := ExpandPath(config)
	if err != nil {
		return nil, err
	}
	return sqlite.NewStore(path), nil
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// ConfigDir returns the directory holding logs and backups for a backend.
func ConfigDir(p Provider) string {
	if path := p.GetConfigPath(); filepath.IsAbs(path) {
		return filepath.Dir(path)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, constants.AppName)
	}
	return "."
}
