package system

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/keyring"
	"github.com/julianstephens/planmate/internal/storage/postgres"
)

// KeyringSetCmd stores the database connection string in the OS keyring.
type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string to store in keyring."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	if !postgres.IsConnString(cmd.ConnectionString) {
		return errors.New("connection string must be a valid PostgreSQL connection string")
	}
	if err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		// The keyring is encrypted, so an embedded password is allowed here.
		ctx.Println(cli.WarningStyle.Render("Connection string contains embedded credentials; storing it in the OS keyring."))
	}
	if err := keyring.Set(keyring.DatabaseConnection, cmd.ConnectionString); err != nil {
		return err
	}
	ctx.Println("✓ Connection string stored in OS keyring")
	return nil
}

// KeyringGetCmd prints the stored connection string with the password masked.
type KeyringGetCmd struct{}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	connStr, err := keyring.Get(keyring.DatabaseConnection)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring. Use 'planmate keyring set' to store one")
		}
		return err
	}
	ctx.Println(MaskPassword(connStr))
	return nil
}

// KeyringDeleteCmd removes the stored connection string.
type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	if err := keyring.Delete(keyring.DatabaseConnection); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring")
		}
		return err
	}
	ctx.Println("✓ Connection string deleted from OS keyring")
	return nil
}

// MaskPassword hides the password in a URL or key=value connection string.
func MaskPassword(connStr string) string {
	if idx := strings.Index(connStr, "://"); idx != -1 {
		rest := connStr[idx+3:]
		if at := strings.LastIndex(rest, "@"); at != -1 {
			userInfo := rest[:at]
			if colon := strings.Index(userInfo, ":"); colon != -1 {
				return connStr[:idx+3] + userInfo[:colon] + ":****" + rest[at:]
			}
		}
		return connStr
	}
	if !strings.Contains(connStr, "password=") {
		return connStr
	}
	parts := strings.Fields(connStr)
	for i, p := range parts {
		if strings.HasPrefix(p, "password=") {
			parts[i] = "password=****"
		}
	}
	return strings.Join(parts, " ")
}
