package records

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
)

var planCodec = Codec[models.Plan]{
	Namespace: constants.NamespacePlans,
	Prefix:    "plan",
	ID:        func(p models.Plan) int64 { return int64(p.ID) },
	Encode: func(p models.Plan) map[string]string {
		return map[string]string{
			"id":          strconv.Itoa(p.ID),
			"title":       p.Title,
			"description": p.Description,
			"day":         strconv.Itoa(models.WeekdayToISO(p.Day)),
			"startTime":   p.StartTime,
			"endTime":     p.EndTime,
			"isDaily":     strconv.FormatBool(p.IsDaily),
			"isCompleted": strconv.FormatBool(p.IsCompleted),
		}
	},
	Decode: func(i int, f Fields) models.Plan {
		day, ok := models.ISOToWeekday(f.Int("day", 1))
		if !ok {
			day = time.Monday
		}
		start := f.String("startTime", constants.DefaultPlanStartTime)
		return models.Plan{
			ID:          f.Int("id", i),
			Title:       f.String("title", ""),
			Description: f.String("description", ""),
			Day:         day,
			StartTime:   start,
			EndTime:     f.String("endTime", start),
			IsDaily:     f.Bool("isDaily", false),
			IsCompleted: f.Bool("isCompleted", false),
		}
	},
}

// Plans is the plan table.
type Plans struct {
	*Table[models.Plan]
}

func NewPlans(store prefs.Store) *Plans {
	return &Plans{Table: NewTable(store, planCodec)}
}

// Create assigns the next free id (starting at 1) and appends the plan.
func (p *Plans) Create(ctx context.Context, plan models.Plan) (models.Plan, error) {
	if err := ValidatePlan(plan); err != nil {
		return models.Plan{}, err
	}
	err := p.update(ctx, func(v *view[models.Plan], ed *prefs.Editor) error {
		var max int64
		for id := range v.index {
			if id > max {
				max = id
			}
		}
		plan.ID = int(max + 1)
		v.put(ed, plan)
		return nil
	})
	if err != nil {
		return models.Plan{}, err
	}
	return plan, nil
}

// Update overwrites an existing plan.
func (p *Plans) Update(ctx context.Context, plan models.Plan) error {
	if err := ValidatePlan(plan); err != nil {
		return err
	}
	return p.update(ctx, func(v *view[models.Plan], ed *prefs.Editor) error {
		if _, ok := v.index[int64(plan.ID)]; !ok {
			return fmt.Errorf("plan %d: %w", plan.ID, ErrNotFound)
		}
		v.put(ed, plan)
		return nil
	})
}

// CommitWithCompleted adds the plan's completion flag to ed and commits the
// whole batch under the plan lock. A missing plan commits ed unchanged.
func (p *Plans) CommitWithCompleted(ctx context.Context, id int64, completed bool, ed *prefs.Editor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.load(ctx)
	if err != nil {
		return err
	}
	if i, ok := v.index[id]; ok {
		ed.PutBool(constants.NamespacePlans, v.t.fieldKey(i, "isCompleted"), completed)
	}
	return ed.Commit(ctx)
}

// ValidatePlan checks the fields a user can enter.
func ValidatePlan(p models.Plan) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("plan title is required")
	}
	if p.Day < time.Sunday || p.Day > time.Saturday {
		return fmt.Errorf("invalid day %d", int(p.Day))
	}
	if !clock.ValidTime(p.StartTime) {
		return fmt.Errorf("invalid start time %q, expected HH:MM", p.StartTime)
	}
	if !clock.ValidTime(p.EndTime) {
		return fmt.Errorf("invalid end time %q, expected HH:MM", p.EndTime)
	}
	return nil
}
