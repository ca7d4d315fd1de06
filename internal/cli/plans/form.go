package plans

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/models"
)

// PlanFormModel holds the editable plan fields as strings for the form.
type PlanFormModel struct {
	Title       string
	Description string
	Day         time.Weekday
	Start       string
	End         string
	Daily       bool
}

func formFromPlan(p models.Plan) *PlanFormModel {
	return &PlanFormModel{
		Title:       p.Title,
		Description: p.Description,
		Day:         p.Day,
		Start:       p.StartTime,
		End:         p.EndTime,
		Daily:       p.IsDaily,
	}
}

func (fm *PlanFormModel) apply(p *models.Plan) {
	p.Title = strings.TrimSpace(fm.Title)
	p.Description = strings.TrimSpace(fm.Description)
	p.Day = fm.Day
	p.StartTime = fm.Start
	p.EndTime = fm.End
	p.IsDaily = fm.Daily
}

func validateTime(s string) error {
	if !clock.ValidTime(s) {
		return fmt.Errorf("use HH:MM")
	}
	return nil
}

// NewPlanForm builds the interactive plan editor.
func NewPlanForm(fm *PlanFormModel) *huh.Form {
	days := make([]huh.Option[time.Weekday], 0, 7)
	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday} {
		days = append(days, huh.NewOption(d.String(), d))
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&fm.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title cannot be empty")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&fm.Description),
			huh.NewConfirm().
				Title("Every day?").
				Value(&fm.Daily),
			huh.NewSelect[time.Weekday]().
				Title("Day").
				Description("Ignored for daily plans").
				Options(days...).
				Value(&fm.Day),
			huh.NewInput().
				Title("Start (HH:MM)").
				Value(&fm.Start).
				Validate(validateTime),
			huh.NewInput().
				Title("End (HH:MM)").
				Description("Earlier than start for an overnight plan").
				Value(&fm.End).
				Validate(validateTime),
		),
	).WithTheme(huh.ThemeDracula())
}
