// Package evaluator decides whether a plan's time window contains a moment.
package evaluator

import (
	"time"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/models"
)

// IsActive reports whether now falls in the plan's window. Both ends are
// inclusive at minute granularity. An end earlier than the start is an
// overnight window. Malformed times make the plan inactive.
func IsActive(plan models.Plan, now time.Time) bool {
	if !plan.IsDaily && plan.Day != now.Weekday() {
		return false
	}
	start, err := clock.ParseMinutes(plan.StartTime)
	if err != nil {
		logger.Debug("unparseable plan start time", "plan", plan.ID, "value", plan.StartTime)
		return false
	}
	end, err := clock.ParseMinutes(plan.EndTime)
	if err != nil {
		logger.Debug("unparseable plan end time", "plan", plan.ID, "value", plan.EndTime)
		return false
	}
	cur := clock.MinutesOf(now)
	if end >= start {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

// Evaluator checks plans against an injected clock.
type Evaluator struct {
	Clock clock.Clock
}

func New(c clock.Clock) *Evaluator {
	if c == nil {
		c = clock.Real{}
	}
	return &Evaluator{Clock: c}
}

func (e *Evaluator) Active(plan models.Plan) bool {
	return IsActive(plan, e.Clock.Now())
}
