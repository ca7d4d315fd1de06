package system

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/planmate/internal/api"
	"github.com/julianstephens/planmate/internal/broadcast"
	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/scheduler"
)

// ServeCmd runs the scheduler daemon and the local API until interrupted.
type ServeCmd struct {
	NoAPI    bool `help:"Run the scheduler without the local API." name:"no-api"`
	NoNotify bool `help:"Print notifications instead of sending them to the tray." name:"no-notify"`
}

func (c *ServeCmd) Run(ctx *cli.Context) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := ctx.Services()
	if err := svc.Settings.SeedDefaults(sigCtx); err != nil {
		logger.Warn("could not seed default settings", "error", err)
	}

	m := metrics.New()
	hub := broadcast.NewHub()
	disp := ctx.Dispatcher(pickNotifier(ctx, c.NoNotify), hub, m)
	daemon := &scheduler.Daemon{
		Queue:    scheduler.NewQueue(m),
		Checker:  newChecker(ctx, disp, m),
		Settings: svc.Settings,
	}
	if z, ok := svc.Clock.(*clock.Zoned); ok {
		daemon.Zone = z
	}

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error { return daemon.Run(gctx) })
	if !c.NoAPI {
		server := &api.Server{
			Records:  svc.Records,
			Resolver: svc.Resolver,
			Writer:   svc.Writer,
			Hub:      hub,
			Metrics:  m,
			Jobs:     daemon,
			Replier:  disp,
		}
		g.Go(func() error { return server.ListenAndServe(gctx, ctx.Addr) })
		ctx.Printf("planmate serving on http://%s\n", ctx.Addr)
	}
	return g.Wait()
}
