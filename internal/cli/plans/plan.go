// Package plans holds the plan subcommands.
package plans

import (
	"context"
	"fmt"
	"strconv"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/records"
)

// runForm is swapped in tests.
var runForm = func(fm *PlanFormModel) error {
	return NewPlanForm(fm).Run()
}

type PlanAddCmd struct {
	Title       string `help:"Plan title. Omit to fill in an interactive form."`
	Description string `help:"What the plan is about."`
	Day         string `help:"Weekday name or number (1=Monday .. 7=Sunday)." default:"monday"`
	Start       string `help:"Start time (HH:MM)." default:"09:00"`
	End         string `help:"End time (HH:MM). Defaults to one hour after start."`
	Daily       bool   `help:"Repeat every day."`
}

func (c *PlanAddCmd) Run(ctx *cli.Context) error {
	day, err := models.ParseWeekday(c.Day)
	if err != nil {
		return err
	}
	plan := models.Plan{
		Title:       c.Title,
		Description: c.Description,
		Day:         day,
		StartTime:   c.Start,
		EndTime:     c.End,
		IsDaily:     c.Daily,
	}
	if plan.EndTime == "" {
		plan.EndTime = hourAfter(plan.StartTime)
	}
	if c.Title == "" {
		fm := formFromPlan(plan)
		if err := runForm(fm); err != nil {
			return err
		}
		fm.apply(&plan)
	}

	created, err := ctx.Services().Records.Plans.Create(context.Background(), plan)
	if err != nil {
		return fmt.Errorf("failed to add plan: %w", err)
	}
	ctx.Printf("Added plan: %s (ID: %d, %s %s)\n", created.Title, created.ID, created.Schedule(), created.Window())
	return nil
}

func hourAfter(start string) string {
	t, err := clock.ParseMinutes(start)
	if err != nil {
		return start
	}
	return fmt.Sprintf("%02d:%02d", (t/60+1)%24, t%60)
}

type PlanEditCmd struct {
	ID          int     `arg:"" help:"Plan ID to edit."`
	Title       *string `help:"New title."`
	Description *string `help:"New description."`
	Day         *string `help:"New weekday."`
	Start       *string `help:"New start time (HH:MM)."`
	End         *string `help:"New end time (HH:MM)."`
	Daily       *bool   `help:"Repeat every day."`
}

func (c *PlanEditCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	svc := ctx.Services().Records
	plan, ok, err := svc.Plans.Get(bg, int64(c.ID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("plan %d: %w", c.ID, records.ErrNotFound)
	}

	changed := false
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
			changed = true
		}
	}
	set(&plan.Title, c.Title)
	set(&plan.Description, c.Description)
	set(&plan.StartTime, c.Start)
	set(&plan.EndTime, c.End)
	if c.Day != nil {
		if plan.Day, err = models.ParseWeekday(*c.Day); err != nil {
			return err
		}
		changed = true
	}
	if c.Daily != nil {
		plan.IsDaily = *c.Daily
		changed = true
	}
	if !changed {
		fm := formFromPlan(plan)
		if err := runForm(fm); err != nil {
			return err
		}
		fm.apply(&plan)
	}

	if err := svc.Plans.Update(bg, plan); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	// Keep the plan's conversation titled after it.
	if conv, ok, err := svc.Conversations.Get(bg, int64(plan.ID)); err == nil && ok && conv.Title != plan.Title {
		conv.Title = plan.Title
		if err := svc.Conversations.Save(bg, conv); err != nil {
			return fmt.Errorf("failed to rename conversation: %w", err)
		}
	}
	ctx.Printf("Updated plan: %s (ID: %d)\n", plan.Title, plan.ID)
	return nil
}

type PlanListCmd struct {
	Day string `help:"Only show plans that run on this weekday."`
}

func (c *PlanListCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	svc := ctx.Services()
	plans, err := svc.Records.Plans.LoadAll(bg)
	if err != nil {
		return fmt.Errorf("failed to get plans: %w", err)
	}
	if c.Day != "" {
		day, err := models.ParseWeekday(c.Day)
		if err != nil {
			return err
		}
		filtered := plans[:0]
		for _, p := range plans {
			if p.IsDaily || p.Day == day {
				filtered = append(filtered, p)
			}
		}
		plans = filtered
	}
	if len(plans) == 0 {
		ctx.Println("No plans found")
		return nil
	}

	rows := make([][]string, 0, len(plans))
	for _, p := range plans {
		st, err := svc.Resolver.ForPlan(bg, int64(p.ID))
		if err != nil {
			st = models.StatusNotStarted
		}
		rows = append(rows, []string{strconv.Itoa(p.ID), p.Title, p.Schedule(), p.Window(), cli.StatusLabel(st)})
	}
	ctx.Println(cli.Table([]string{"ID", "Title", "Schedule", "Window", "Status"}, rows))
	return nil
}

type PlanDeleteCmd struct {
	ID  int  `arg:"" help:"Plan ID to delete."`
	Yes bool `short:"y" help:"Skip the confirmation prompt."`
}

func (c *PlanDeleteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	svc := ctx.Services()
	plan, ok, err := svc.Records.Plans.Get(bg, int64(c.ID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("plan %d: %w", c.ID, records.ErrNotFound)
	}
	confirmed, err := ctx.Ask(fmt.Sprintf("Delete %q and its conversation?", plan.Title), c.Yes)
	if err != nil {
		return err
	}
	if !confirmed {
		ctx.Println("Delete cancelled.")
		return nil
	}

	ctx.PerformAutomaticBackup()
	if err := svc.Records.DeletePlan(bg, int64(c.ID), svc.Writer); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	ctx.Printf("Deleted plan: %s (ID: %d)\n", plan.Title, c.ID)
	return nil
}

type PlanCompleteCmd struct {
	ID   int  `arg:"" help:"Plan ID to mark completed."`
	Undo bool `help:"Mark the plan not started again."`
}

func (c *PlanCompleteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	svc := ctx.Services()
	plan, ok, err := svc.Records.Plans.Get(bg, int64(c.ID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("plan %d: %w", c.ID, records.ErrNotFound)
	}
	st := models.StatusCompleted
	if c.Undo {
		st = models.StatusNotStarted
	}
	// The plan's conversation shares its id.
	if err := svc.Writer.Set(bg, int64(plan.ID), int64(plan.ID), st); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	ctx.Printf("Plan %s is now %s\n", plan.Title, cli.StatusLabel(st))
	return nil
}
