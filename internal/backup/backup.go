// Package backup snapshots and restores the SQLite preference database.
package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/logger"
)

var (
	// ErrNoDatabase is returned when there is nothing to back up.
	ErrNoDatabase = errors.New("database does not exist")
	// ErrInvalidBackup is returned when a file is not a planmate database.
	ErrInvalidBackup = errors.New("not a planmate database")
)

const (
	stampMinute = "20060102-1504"
	stampSecond = "20060102-150405"
)

var namePattern = regexp.MustCompile(`^` + regexp.QuoteMeta(constants.BackupFilePrefix) +
	`(\d{8}-\d{4}(?:\d{2})?)(?:-\d+)?` + regexp.QuoteMeta(constants.BackupFileSuffix) + `$`)

// Info describes one backup file.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Manager keeps rotating snapshots next to the database file.
type Manager struct {
	dbPath    string
	backupDir string
	keep      int
	clock     clock.Clock
}

func NewManager(dbPath string) *Manager {
	return &Manager{
		dbPath:    dbPath,
		backupDir: filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		keep:      constants.MaxBackups,
		clock:     clock.Real{},
	}
}

// WithClock overrides the clock used for file names.
func (m *Manager) WithClock(c clock.Clock) *Manager {
	m.clock = c
	return m
}

// WithRetention overrides how many snapshots are kept.
func (m *Manager) WithRetention(n int) *Manager {
	if n > 0 {
		m.keep = n
	}
	return m
}

func (m *Manager) Dir() string { return m.backupDir }

// Create snapshots the database and prunes old snapshots.
func (m *Manager) Create() (string, error) {
	path, err := m.create()
	if err != nil {
		return "", err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("failed to rotate old backups", "error", err)
	}
	return path, nil
}

func (m *Manager) create() (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := os.Stat(m.dbPath); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNoDatabase, m.dbPath)
	}
	dest, err := m.nextName()
	if err != nil {
		return "", err
	}
	if err := snapshot(m.dbPath, dest); err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}
	logger.Info("Created backup", "path", dest)
	return dest, nil
}

func (m *Manager) nextName() (string, error) {
	now := m.clock.Now()
	candidate := func(stamp string, n int) string {
		name := constants.BackupFilePrefix + stamp
		if n > 0 {
			name += fmt.Sprintf("-%d", n)
		}
		return filepath.Join(m.backupDir, name+constants.BackupFileSuffix)
	}
	if p := candidate(now.Format(stampMinute), 0); !exists(p) {
		return p, nil
	}
	stamp := now.Format(stampSecond)
	for n := 0; n <= 100; n++ {
		if p := candidate(stamp, n); !exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique backup filename")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// snapshot writes a consistent copy with VACUUM INTO, falling back to a
// plain copy when the source cannot be vacuumed.
func snapshot(src, dest string) error {
	db, err := sql.Open("sqlite", src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if err := verify(db); err != nil {
		return err
	}
	if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
		logger.Debug("VACUUM INTO failed, copying file", "error", err)
		db.Close()
		return copyFile(src, dest)
	}
	return nil
}

// verify checks that db holds the preferences table.
func verify(db *sql.DB) error {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'preferences'").Scan(&n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: missing preferences table", ErrInvalidBackup)
	}
	return nil
}

// List returns backups newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := namePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		layout := stampMinute
		if len(match[1]) == len(stampSecond) {
			layout = stampSecond
		}
		ts, err := time.ParseInLocation(layout, match[1], time.Local)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Path: filepath.Join(m.backupDir, e.Name()), Timestamp: ts, Size: info.Size()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Path > out[j].Path
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *Manager) rotate() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	for i := m.keep; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// Restore replaces the database with backupPath. The current database is
// snapshotted first and that snapshot's path is returned. The caller must
// not hold the database open.
func (m *Manager) Restore(backupPath string) (string, error) {
	if !exists(backupPath) {
		return "", fmt.Errorf("backup file does not exist: %s", backupPath)
	}
	db, err := sql.Open("sqlite", backupPath+"?mode=ro")
	if err != nil {
		return "", err
	}
	err = verify(db)
	db.Close()
	if err != nil {
		return "", err
	}

	var previous string
	if exists(m.dbPath) {
		if previous, err = m.create(); err != nil {
			return "", fmt.Errorf("failed to back up current database before restore: %w", err)
		}
	}

	tmp := m.dbPath + ".restore.tmp"
	if err := copyFile(backupPath, tmp); err != nil {
		return previous, fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := os.Rename(tmp, m.dbPath); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logger.Warn("failed to remove temporary file", "path", tmp, "error", rmErr)
		}
		return previous, fmt.Errorf("failed to restore database: %w", err)
	}
	// Stale WAL files would be replayed over the restored database.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove journal file", "path", m.dbPath+suffix, "error", err)
		}
	}
	logger.Info("Restored database", "from", backupPath)
	return previous, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Sync()
}
