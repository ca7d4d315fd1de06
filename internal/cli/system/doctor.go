package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/planmate/internal/ai"
	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/notifier"
	"github.com/julianstephens/planmate/internal/settings"
	"github.com/julianstephens/planmate/internal/validation"
)

// Pinger reports whether the notification target is reachable.
type Pinger interface {
	Ping() error
}

type DoctorCmd struct {
	tray Pinger
}

type checkLevel int

const (
	levelFail checkLevel = iota
	levelWarn
)

type check struct {
	name  string
	level checkLevel
	// needsDB skips the check when the database is unreachable.
	needsDB bool
	run     func(ctx *cli.Context) error
}

func (cmd *DoctorCmd) checks() []check {
	tray := cmd.tray
	if tray == nil {
		tray = notifier.NewTray()
	}
	return []check{
		{"Database reachable", levelFail, false, checkDBReachable},
		{"Migrations complete", levelFail, true, checkMigrationsComplete},
		{"Backups present", levelWarn, false, checkBackupsPresent},
		{"Data validation", levelFail, true, checkValidation},
		{"Clock/timezone", levelFail, true, checkTimezone},
		{"AI configuration", levelWarn, true, checkAIConfig},
		{"Tray notifier", levelWarn, false, func(*cli.Context) error { return tray.Ping() }},
	}
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	failed := false
	dbReachable := true
	for _, c := range cmd.checks() {
		if c.needsDB && !dbReachable {
			ctx.Printf("⊘ %s: SKIPPED (database not reachable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.Printf("%s %s: OK\n", cli.SuccessStyle.Render("✓"), c.name)
		case c.level == levelWarn:
			ctx.Printf("%s %s: WARNING\n   %v\n", cli.WarningStyle.Render("⚠"), c.name, err)
		default:
			ctx.Printf("%s %s: FAIL\n   Error: %v\n", cli.DangerStyle.Render("❌"), c.name, err)
			failed = true
			if c.name == "Database reachable" {
				dbReachable = false
			}
		}
	}

	ctx.Println()
	if dbReachable {
		if err := printCounts(ctx); err != nil {
			logger.Debug("could not count records", "error", err)
		}
	}
	if failed {
		return errors.New("one or more diagnostics failed")
	}
	ctx.Println("All critical checks passed.")
	return nil
}

func printCounts(ctx *cli.Context) error {
	svc := ctx.Services().Records
	bg := context.Background()
	plans, err := svc.Plans.Count(bg)
	if err != nil {
		return err
	}
	convs, err := svc.Conversations.Count(bg)
	if err != nil {
		return err
	}
	ctx.Println()
	ctx.Println(cli.MutedStyle.Render(fmt.Sprintf("Stored: %d plan(s), %d conversation(s)", plans, convs)))
	return nil
}

func checkDBReachable(ctx *cli.Context) error {
	_, err := ctx.Store.All(context.Background(), constants.NamespacePlannerSettings)
	return err
}

func checkMigrationsComplete(ctx *cli.Context) error {
	current, latest, err := ctx.Store.MigrationStatus()
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("schema version %d, latest %d; run 'planmate migrate'", current, latest)
	}
	if current > latest {
		return fmt.Errorf("schema version %d is newer than this binary supports (%d)", current, latest)
	}
	return nil
}

func checkBackupsPresent(ctx *cli.Context) error {
	mgr := ctx.BackupManager()
	if mgr == nil {
		return errors.New("backups are only managed for SQLite storage")
	}
	list, err := mgr.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("no backups in %s; run 'planmate backup create'", mgr.Dir())
	}
	return nil
}

func checkValidation(ctx *cli.Context) error {
	svc := ctx.Services().Records
	bg := context.Background()
	plans, err := svc.Plans.LoadAll(bg)
	if err != nil {
		return err
	}
	convs, err := svc.Conversations.LoadAll(bg)
	if err != nil {
		return err
	}
	v := validation.New()
	res := validation.Merge(v.ValidatePlans(plans), v.ValidateConversations(plans, convs))
	if res.HasConflicts() {
		return fmt.Errorf("%d conflict(s); run 'planmate validate'", len(res.Conflicts))
	}
	return nil
}

func checkTimezone(ctx *cli.Context) error {
	ps, err := ctx.Services().Settings.Planner(context.Background())
	if err != nil {
		return err
	}
	if _, err := clock.LoadLocation(ps.Timezone); err != nil {
		return err
	}
	return nil
}

func checkAIConfig(ctx *cli.Context) error {
	svc := ctx.Services().Settings
	s, err := svc.AI(context.Background(), -1)
	if err != nil {
		return err
	}
	if _, gerr := ai.ForSettings(s); gerr != nil {
		if svc.APIKeySource(context.Background(), -1) == settings.KeySourceNone {
			return fmt.Errorf("%s; set %s or run 'planmate ai set-key'", gerr.Message, constants.EnvAIAPIKey)
		}
		return gerr
	}
	return nil
}

// ValidateCmd prints every plan and conversation conflict.
type ValidateCmd struct{}

func (cmd *ValidateCmd) Run(ctx *cli.Context) error {
	svc := ctx.Services().Records
	bg := context.Background()
	plans, err := svc.Plans.LoadAll(bg)
	if err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	convs, err := svc.Conversations.LoadAll(bg)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	v := validation.New()
	res := validation.Merge(v.ValidatePlans(plans), v.ValidateConversations(plans, convs))
	ctx.Println(res.FormatReport())
	return nil
}
