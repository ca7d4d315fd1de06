// Package cli holds the state shared by planmate's subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/planmate/internal/backup"
	"github.com/julianstephens/planmate/internal/broadcast"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/dispatcher"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/notifier"
	"github.com/julianstephens/planmate/internal/records"
	"github.com/julianstephens/planmate/internal/settings"
	"github.com/julianstephens/planmate/internal/status"
	"github.com/julianstephens/planmate/internal/storage"
	"github.com/julianstephens/planmate/internal/storage/sqlite"
)

// Services are the domain objects built over the open store.
type Services struct {
	Records  *records.Service
	Settings *settings.Service
	Resolver *status.Resolver
	Writer   *status.Writer
	Clock    clock.Clock
}

type Context struct {
	Store storage.Provider
	// Addr is the local API listen address.
	Addr string
	// Out receives command output.
	Out io.Writer
	// Clock overrides the timezone-aware system clock, for tests.
	Clock clock.Clock
	// Confirm asks a yes/no question. Nil uses an interactive prompt.
	Confirm func(title string) (bool, error)
	// AIClient overrides the completion client, for tests.
	AIClient dispatcher.ClientFactory

	services *Services
}

// Services builds the domain services on first use. The clock follows the
// planner timezone setting.
func (c *Context) Services() *Services {
	if c.services != nil {
		return c.services
	}
	st := settings.New(c.Store)
	clk := c.Clock
	if clk == nil {
		zoned := clock.NewZoned(nil, time.Local)
		if ps, err := st.Planner(context.Background()); err == nil {
			if loc, err := clock.LoadLocation(ps.Timezone); err == nil {
				zoned.SetLocation(loc)
			}
		}
		clk = zoned
	}
	rec := records.NewService(c.Store, clk)
	c.services = &Services{
		Records:  rec,
		Settings: st,
		Resolver: status.NewResolver(c.Store, rec.Conversations),
		Writer:   status.NewWriter(c.Store, rec.Plans),
		Clock:    clk,
	}
	return c.services
}

// Dispatcher builds the message dispatcher over the context's services.
// n, hub and m may be nil.
func (c *Context) Dispatcher(n notifier.Notifier, hub *broadcast.Hub, m *metrics.Metrics) *dispatcher.Dispatcher {
	svc := c.Services()
	d := &dispatcher.Dispatcher{
		Conversations: svc.Records.Conversations,
		Settings:      svc.Settings,
		Notifier:      n,
		Tracker:       svc.Records.Tracker,
		Metrics:       m,
		Clock:         svc.Clock,
		NewClient:     c.AIClient,
	}
	if hub != nil {
		d.Events = hub
	}
	return d
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Output(), format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.Output(), args...)
}

// Output is where command output goes, stdout by default.
func (c *Context) Output() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Ask runs the confirmation prompt. yes short-circuits it.
func (c *Context) Ask(title string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if c.Confirm != nil {
		return c.Confirm(title)
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		WithTheme(huh.ThemeDracula()).
		Run()
	return ok, err
}

// BackupManager returns a manager for the SQLite file, or nil for other backends.
func (c *Context) BackupManager() *backup.Manager {
	if _, ok := c.Store.(*sqlite.Store); !ok {
		return nil
	}
	return backup.NewManager(c.Store.GetConfigPath())
}

// PerformAutomaticBackup snapshots the database before a destructive change.
// Failures are logged and otherwise ignored.
func (c *Context) PerformAutomaticBackup() {
	mgr := c.BackupManager()
	if mgr == nil {
		return
	}
	if _, err := mgr.Create(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// FormatTime renders a timestamp for listings.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(constants.DateFormat + " " + constants.TimeFormat)
}
