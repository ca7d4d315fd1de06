// Package backups holds the backup subcommands.
package backups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/planmate/internal/backup"
	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/constants"
)

var errNotSQLite = errors.New("backups are only available for the SQLite backend")

func manager(ctx *cli.Context) (*backup.Manager, error) {
	mgr := ctx.BackupManager()
	if mgr == nil {
		return nil, errNotSQLite
	}
	return mgr, nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	mgr, err := manager(ctx)
	if err != nil {
		return err
	}
	path, err := mgr.Create()
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	ctx.Printf("✓ Backup created: %s\n", filepath.Base(path))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr, err := manager(ctx)
	if err != nil {
		return err
	}
	list, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(list) == 0 {
		ctx.Println("No backups found.")
		ctx.Printf("Backups are stored in: %s\n", mgr.Dir())
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, b := range list {
		rows = append(rows, []string{
			b.Timestamp.Format("2006-01-02 15:04:05"),
			filepath.Base(b.Path),
			fmt.Sprintf("%.1f KB", float64(b.Size)/1024.0),
		})
	}
	ctx.Printf("Available backups (%d total, keeping most recent %d):\n", len(list), constants.MaxBackups)
	ctx.Println(cli.Table([]string{"Created", "File", "Size"}, rows))
	ctx.Printf("Backup directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `short:"y" help:"Skip the confirmation prompt."`
}

// resolve finds the backup as given, then relative to the backup directory.
func resolve(mgr *backup.Manager, name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	if !filepath.IsAbs(name) {
		candidate := filepath.Join(mgr.Dir(), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		return "", fmt.Errorf("backup file not found: tried current directory and %s", mgr.Dir())
	}
	return "", fmt.Errorf("backup file not found: %s", name)
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	mgr, err := manager(ctx)
	if err != nil {
		return err
	}
	path, err := resolve(mgr, c.BackupFile)
	if err != nil {
		return err
	}

	ctx.Println(cli.WarningStyle.Render("⚠️  This will replace your current database with the backup."))
	ctx.Println(cli.WarningStyle.Render("⚠️  Stop any running 'planmate serve' first."))
	ctx.Printf("Restore from: %s\n", path)
	ok, err := ctx.Ask("Continue?", c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		ctx.Println("Restore cancelled.")
		return nil
	}

	if err := ctx.Store.Close(); err != nil {
		ctx.Printf("Warning: failed to close database connection: %v\n", err)
	}
	previous, err := mgr.Restore(path)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	ctx.Println(cli.SuccessStyle.Render("✓ Database restored"))
	if previous != "" {
		ctx.Printf("Previous database saved as: %s\n", filepath.Base(previous))
	}
	return nil
}
