package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/cli/assistant"
	"github.com/julianstephens/planmate/internal/cli/backups"
	"github.com/julianstephens/planmate/internal/cli/convs"
	"github.com/julianstephens/planmate/internal/cli/plans"
	"github.com/julianstephens/planmate/internal/cli/settings"
	"github.com/julianstephens/planmate/internal/cli/system"
	"github.com/julianstephens/planmate/internal/cli/transfers"
	"github.com/julianstephens/planmate/internal/constants"
	apperrors "github.com/julianstephens/planmate/internal/errors"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/storage"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"SQLite file path or PostgreSQL connection string. PostgreSQL credentials must NOT be embedded; use PLANMATE_DB_CONNECTION, .pgpass or 'planmate keyring set' instead." env:"${env_config}" default:"${default_config}"`
	Debug   bool   `help:"Enable debug logging to stderr." env:"${env_debug}"`
	Addr    string `help:"Local API listen address." env:"${env_addr}" default:"${default_addr}"`

	Init     system.InitCmd     `cmd:"" help:"Initialize planmate storage."`
	Migrate  system.MigrateCmd  `cmd:"" help:"Run database migrations."`
	Doctor   system.DoctorCmd   `cmd:"" help:"Run health checks and diagnostics."`
	Validate system.ValidateCmd `cmd:"" help:"Check plans and conversations for conflicts."`
	Check    system.CheckCmd    `cmd:"" help:"Run one plan check now."`
	Serve    system.ServeCmd    `cmd:"" help:"Run the scheduler and the local API."`

	Plan struct {
		Add      plans.PlanAddCmd      `cmd:"" help:"Add a plan."`
		Edit     plans.PlanEditCmd     `cmd:"" help:"Edit a plan."`
		List     plans.PlanListCmd     `cmd:"" help:"List plans." default:"1"`
		Delete   plans.PlanDeleteCmd   `cmd:"" help:"Delete a plan and its conversation."`
		Complete plans.PlanCompleteCmd `cmd:"" help:"Mark a plan completed."`
	} `cmd:"" help:"Manage plans."`
	Conv struct {
		List   convs.ConvListCmd   `cmd:"" help:"List conversations by status." default:"1"`
		New    convs.ConvNewCmd    `cmd:"" help:"Start a free-form conversation."`
		Show   convs.ConvShowCmd   `cmd:"" help:"Show a conversation transcript."`
		Send   convs.ConvSendCmd   `cmd:"" help:"Send a message."`
		Clear  convs.ConvClearCmd  `cmd:"" help:"Remove every message from a conversation."`
		Delete convs.ConvDeleteCmd `cmd:"" help:"Delete a conversation."`
		Status convs.ConvStatusCmd `cmd:"" help:"Show or set a conversation's status."`
	} `cmd:"" help:"Manage conversations."`
	Settings struct {
		Show    settings.SettingsShowCmd    `cmd:"" help:"Show all settings." default:"1"`
		Set     settings.SettingsSetCmd     `cmd:"" help:"Set one raw setting."`
		Planner settings.SettingsPlannerCmd `cmd:"" help:"Edit planner settings."`
		AI      settings.SettingsAICmd      `cmd:"" name:"ai" help:"Edit AI settings."`
		ResetAI settings.SettingsResetAICmd `cmd:"" name:"reset-ai" help:"Drop a conversation's AI overrides."`
		Chat    settings.SettingsChatCmd    `cmd:"" help:"Edit chat display settings."`
	} `cmd:"" help:"Manage application settings."`
	AI struct {
		Models    assistant.AIModelsCmd    `cmd:"" help:"List models offered by the endpoint."`
		Test      assistant.AITestCmd      `cmd:"" help:"Send a test prompt."`
		SetKey    assistant.AISetKeyCmd    `cmd:"" name:"set-key" help:"Store the API key in the OS keyring."`
		DeleteKey assistant.AIDeleteKeyCmd `cmd:"" name:"delete-key" help:"Remove the API key from the OS keyring."`
		KeyStatus assistant.AIKeyStatusCmd `cmd:"" name:"key-status" help:"Show where the API key comes from."`
	} `cmd:"" name:"ai" help:"Manage the AI endpoint."`
	Backup struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage database backups."`
	Export  transfers.ExportCmd `cmd:"" help:"Export plans, conversations and settings as YAML."`
	Import  transfers.ImportCmd `cmd:"" help:"Replace plans and conversations from an export."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the database connection string."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection string, password masked."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Delete the stored connection string."`
	} `cmd:"" help:"Manage the database connection string in the OS keyring."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Plan companion with scheduled AI check-ins"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":        constants.Version,
			"env_config":     constants.EnvConfig,
			"env_debug":      constants.EnvDebug,
			"env_addr":       constants.EnvAddr,
			"default_config": constants.DefaultConfigPath,
			"default_addr":   constants.DefaultAPIAddr,
		},
	)

	store, err := storage.Open(CLI.Config)
	if err != nil {
		if errors.Is(err, storage.ErrEmbeddedCredentials) {
			err = apperrors.WithHint(err,
				"store it with 'planmate keyring set', export "+constants.EnvDBConnStr+", or use a .pgpass file")
		}
		apperrors.Fatal(err)
	}

	command := kctx.Command()
	logFile, err := logger.Init(logger.Config{
		Debug:      CLI.Debug,
		ConfigDir:  storage.ConfigDir(store),
		Foreground: strings.HasPrefix(command, "serve"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	}
	logger.Debug("starting", "command", command, "backend", store.GetConfigPath())

	shutdown := func() {
		if err := store.Close(); err != nil {
			logger.Debug("closing store", "error", err)
		}
		if logFile != nil {
			logFile.Close()
		}
	}

	// init loads the store itself.
	if !strings.HasPrefix(command, "init") {
		if err := store.Load(); err != nil {
			shutdown()
			apperrors.Fatal(apperrors.WithHint(err, "run 'planmate init' first"))
		}
	}

	err = kctx.Run(&cli.Context{Store: store, Addr: CLI.Addr, Out: os.Stdout})
	shutdown()
	apperrors.Fatal(err)
}
