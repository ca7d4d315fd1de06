package system

import (
	"context"
	"fmt"
	"os"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/storage/sqlite"
)

type InitCmd struct {
	Force bool `help:"Delete an existing SQLite database before initializing."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if _, ok := ctx.Store.(*sqlite.Store); !ok {
			return fmt.Errorf("--force only applies to SQLite storage")
		}
		dbPath := ctx.Store.GetConfigPath()
		if _, err := os.Stat(dbPath); err == nil {
			if err := ctx.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to delete existing database: %w", err)
				}
			}
			ctx.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	if err := ctx.Services().Settings.SeedDefaults(context.Background()); err != nil {
		return err
	}
	ctx.Printf("Initialized planmate storage at: %s\n", ctx.Store.GetConfigPath())
	return nil
}
