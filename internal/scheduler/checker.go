package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/dispatcher"
	"github.com/julianstephens/planmate/internal/evaluator"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/models"
)

// PlanSource loads plans.
type PlanSource interface {
	LoadAll(ctx context.Context) ([]models.Plan, error)
	Get(ctx context.Context, id int64) (models.Plan, bool, error)
}

// ConversationSource finds or creates the conversation for a plan.
type ConversationSource interface {
	FindOrCreateForPlan(ctx context.Context, plan models.Plan) (models.Conversation, bool, error)
}

// StatusSource resolves effective status.
type StatusSource interface {
	Effective(ctx context.Context, conversationID int64) (models.Status, error)
	ForPlan(ctx context.Context, planID int64) (models.Status, error)
}

// Dispatcher generates and delivers a message.
type Dispatcher interface {
	Dispatch(ctx context.Context, plan models.Plan, convID int64, st models.Status) dispatcher.Outcome
}

// Report summarises one check.
type Report struct {
	Plans      int
	Active     int
	Dispatched int
	Failed     int
	Err        error
}

// PlanResult is the decision made for one plan.
type PlanResult struct {
	Plan           models.Plan
	ConversationID int64
	Status         models.Status
	Active         bool
	Dispatched     bool
	Outcome        dispatcher.Outcome
}

// Checker runs the periodic evaluation over every plan.
type Checker struct {
	Plans         PlanSource
	Conversations ConversationSource
	Statuses      StatusSource
	Evaluator     *evaluator.Evaluator
	Dispatcher    Dispatcher
	Metrics       *metrics.Metrics
	Concurrency   int
	// DryRun evaluates without dispatching.
	DryRun bool
	// OnDispatched runs after each dispatch, e.g. to schedule a follow-up.
	OnDispatched func(PlanResult)

	locks keyedMutex
}

// RunOnce checks every plan concurrently and waits for all of them. It never
// fails: errors are logged and counted in the report.
func (c *Checker) RunOnce(ctx context.Context) Report {
	started := time.Now()
	plans, err := c.Plans.LoadAll(ctx)
	if err != nil {
		logger.Error("periodic check could not load plans", "error", err)
		return Report{Err: err}
	}
	results := make([]PlanResult, len(plans))

	limit := c.Concurrency
	if limit <= 0 {
		limit = constants.CheckConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, plan := range plans {
		g.Go(func() error {
			results[i] = c.CheckPlan(gctx, plan)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Plans: len(plans)}
	for _, r := range results {
		if r.Active {
			rep.Active++
		}
		if r.Dispatched {
			rep.Dispatched++
			if !r.Outcome.OK() {
				rep.Failed++
			}
		}
	}
	c.Metrics.ObserveCheck(time.Since(started), rep.Active)
	logger.Debug("periodic check finished", "plans", rep.Plans, "active", rep.Active, "dispatched", rep.Dispatched, "failed", rep.Failed)
	return rep
}

// CheckPlan finds the plan's conversation, resolves its status and
// dispatches when the plan is inside its window and not completed.
func (c *Checker) CheckPlan(ctx context.Context, plan models.Plan) PlanResult {
	return c.checkPlan(ctx, plan, !c.DryRun)
}

func (c *Checker) checkPlan(ctx context.Context, plan models.Plan, dispatch bool) PlanResult {
	res := PlanResult{Plan: plan, Status: models.StatusNotStarted}
	if ctx.Err() != nil {
		return res
	}

	if !dispatch {
		// Evaluation only: never create the conversation.
		res.ConversationID = int64(plan.ID)
		st, err := c.Statuses.ForPlan(ctx, int64(plan.ID))
		if err != nil {
			st = models.StatusNotStarted
		}
		res.Status = st
		res.Active = c.Evaluator.Active(plan)
		return res
	}

	conv, created, err := c.Conversations.FindOrCreateForPlan(ctx, plan)
	if err != nil {
		logger.Error("could not open plan conversation", "plan", plan.ID, "error", err)
		return res
	}
	if created {
		logger.Info("Created conversation for plan", "plan", plan.ID, "title", plan.Title)
	}
	res.ConversationID = conv.ID

	// Hold the conversation for the whole read-generate-append sequence so
	// overlapping checks cannot interleave messages.
	unlock := c.locks.Lock(conv.ID)
	defer unlock()

	st, err := c.Statuses.Effective(ctx, conv.ID)
	if err != nil {
		logger.Warn("status unavailable, assuming not started", "plan", plan.ID, "error", err)
		st = models.StatusNotStarted
	}
	res.Status = st
	res.Active = c.Evaluator.Active(plan)
	if !res.Active || plan.IsCompleted || st == models.StatusCompleted {
		return res
	}

	res.Outcome = c.Dispatcher.Dispatch(ctx, plan, conv.ID, st)
	res.Dispatched = true
	if c.OnDispatched != nil {
		c.OnDispatched(res)
	}
	return res
}

// CheckPlanID reloads one plan and checks it. Missing plans are skipped.
func (c *Checker) CheckPlanID(ctx context.Context, id int64) (PlanResult, bool) {
	plan, ok, err := c.Plans.Get(ctx, id)
	if err != nil {
		logger.Error("could not load plan", "plan", id, "error", err)
		return PlanResult{}, false
	}
	if !ok {
		return PlanResult{}, false
	}
	return c.CheckPlan(ctx, plan), true
}

// Evaluate reports the decision for every plan without dispatching.
func (c *Checker) Evaluate(ctx context.Context) ([]PlanResult, error) {
	plans, err := c.Plans.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PlanResult, 0, len(plans))
	for _, p := range plans {
		out = append(out, c.checkPlan(ctx, p, false))
	}
	return out, nil
}
