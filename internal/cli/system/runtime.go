package system

import (
	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/dispatcher"
	"github.com/julianstephens/planmate/internal/evaluator"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/notifier"
	"github.com/julianstephens/planmate/internal/scheduler"
)

// newChecker wires the periodic check over the context's services. m may be nil.
func newChecker(ctx *cli.Context, d *dispatcher.Dispatcher, m *metrics.Metrics) *scheduler.Checker {
	svc := ctx.Services()
	return &scheduler.Checker{
		Plans:         svc.Records.Plans,
		Conversations: svc.Records.Conversations,
		Statuses:      svc.Resolver,
		Evaluator:     evaluator.New(svc.Clock),
		Dispatcher:    d,
		Metrics:       m,
		Concurrency:   constants.CheckConcurrency,
	}
}

func pickNotifier(ctx *cli.Context, print bool) notifier.Notifier {
	if print {
		return notifier.DryRun{Out: ctx.Output()}
	}
	return notifier.NewTray()
}
