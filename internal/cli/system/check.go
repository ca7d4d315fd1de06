package system

import (
	"context"
	"fmt"
	"strconv"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/dispatcher"
	"github.com/julianstephens/planmate/internal/models"
)

type CheckCmd struct {
	DryRun   bool `help:"Report what each plan would do without generating messages." name:"dry-run"`
	NoNotify bool `help:"Print notifications instead of sending them to the tray." name:"no-notify"`

	// newClient is swapped in tests.
	newClient dispatcher.ClientFactory
}

func (c *CheckCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	d := ctx.Dispatcher(pickNotifier(ctx, c.NoNotify), nil, nil)
	if c.newClient != nil {
		d.NewClient = c.newClient
	}
	checker := newChecker(ctx, d, nil)

	if c.DryRun {
		results, err := checker.Evaluate(bg)
		if err != nil {
			return fmt.Errorf("failed to load plans: %w", err)
		}
		if len(results) == 0 {
			ctx.Println("No plans found.")
			return nil
		}
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			would := "no"
			if r.Active && !r.Plan.IsCompleted && r.Status != models.StatusCompleted {
				would = "yes"
			}
			rows = append(rows, []string{
				strconv.Itoa(r.Plan.ID), r.Plan.Title, r.Plan.Schedule(),
				cli.StatusLabel(r.Status), strconv.FormatBool(r.Active), would,
			})
		}
		ctx.Println(cli.Table([]string{"ID", "Plan", "Schedule", "Status", "Active", "Dispatch"}, rows))
		return nil
	}

	rep := checker.RunOnce(bg)
	if rep.Err != nil {
		return fmt.Errorf("check failed: %w", rep.Err)
	}
	ctx.Printf("Checked %d plan(s): %d active, %d dispatched, %d failed\n", rep.Plans, rep.Active, rep.Dispatched, rep.Failed)
	return nil
}
