package scheduler

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/models"
)

// PlannerSettings supplies the check interval and related flags.
type PlannerSettings interface {
	Planner(ctx context.Context) (models.PlannerSettings, error)
}

// Zone is a clock whose timezone follows the planner settings.
type Zone interface {
	SetLocation(loc *time.Location)
}

// Daemon keeps the queue's jobs in line with the planner settings.
//
// The global check runs every periodic_check_interval minutes. With
// per_plan_checks set, each plan gets its own job instead. Every dispatch
// schedules a one-shot follow-up for that conversation.
type Daemon struct {
	Queue    *Queue
	Checker  *Checker
	Settings PlannerSettings
	// Minute is the length of one settings minute; tests shrink it.
	Minute       time.Duration
	PollInterval time.Duration
	// Jitter returns the startup delay for a plan.
	Jitter func() time.Duration
	// Zone, when set, is moved to the configured timezone on every poll.
	Zone Zone

	mu       sync.Mutex
	current  models.PlannerSettings
	planJobs map[int64]bool
}

func DefaultJitter() time.Duration {
	span := constants.StartupJitterMax - constants.StartupJitterMin
	return constants.StartupJitterMin + time.Duration(rand.Int64N(int64(span)+1))
}

// PlanTag is the per-plan periodic job tag.
func PlanTag(planID int64) string {
	return constants.TagPeriodicCheckPlanPfx + strconv.FormatInt(planID, 10)
}

// FollowUpTag is the one-shot follow-up tag for a conversation.
func FollowUpTag(convID int64) string {
	return constants.TagConversationNotifyPfx + strconv.FormatInt(convID, 10)
}

func startupTag(planID int64) string {
	return PlanTag(planID) + "_startup"
}

const settingsPollTag = "settings_poll"

func (d *Daemon) minute() time.Duration {
	if d.Minute <= 0 {
		return time.Minute
	}
	return d.Minute
}

// Run starts the queue and blocks until ctx is done, then stops every job.
func (d *Daemon) Run(ctx context.Context) error {
	if d.Jitter == nil {
		d.Jitter = DefaultJitter
	}
	if d.PollInterval <= 0 {
		d.PollInterval = constants.SettingsPollInterval
	}
	d.Checker.OnDispatched = d.scheduleFollowUp

	ps, err := d.Settings.Planner(ctx)
	if err != nil {
		logger.Warn("using default planner settings", "error", err)
	}
	d.apply(ctx, ps, true)
	d.scheduleStartupChecks(ctx)
	if _, err := d.Queue.EnqueuePeriodic(settingsPollTag, d.PollInterval, Keep, d.poll); err != nil {
		return err
	}
	if err := d.Queue.Start(ctx); err != nil {
		return err
	}
	logger.Info("Scheduler started", "interval_min", ps.PeriodicCheckInterval, "per_plan", ps.PerPlanChecks)

	<-ctx.Done()
	d.Queue.Stop()
	logger.Info("Scheduler stopped")
	return nil
}

// apply schedules the global or per-plan jobs for ps. On first run the global
// job is kept if already queued; later interval changes replace it.
func (d *Daemon) apply(ctx context.Context, ps models.PlannerSettings, first bool) {
	d.mu.Lock()
	prev := d.current
	d.current = ps
	d.mu.Unlock()

	if first || prev.Timezone != ps.Timezone {
		d.applyTimezone(ps.Timezone, first)
	}

	interval := time.Duration(models.ClampCheckInterval(ps.PeriodicCheckInterval)) * d.minute()
	changed := !first && (prev.PeriodicCheckInterval != ps.PeriodicCheckInterval || prev.PerPlanChecks != ps.PerPlanChecks)

	if ps.PerPlanChecks {
		d.Queue.Cancel(constants.TagPeriodicCheck)
		d.syncPlanJobs(ctx, interval, changed)
		return
	}
	d.clearPlanJobs()
	policy := Keep
	if changed {
		policy = Replace
		logger.Info("Check interval changed", "minutes", ps.PeriodicCheckInterval)
	}
	if _, err := d.Queue.EnqueuePeriodic(constants.TagPeriodicCheck, interval, policy, func(ctx context.Context) {
		d.Checker.RunOnce(ctx)
	}); err != nil {
		logger.Warn("could not schedule periodic check", "error", err)
	}
}

func (d *Daemon) applyTimezone(name string, first bool) {
	if d.Zone == nil {
		return
	}
	loc, err := clock.LoadLocation(name)
	if err != nil {
		logger.Warn("keeping previous timezone", "timezone", name, "error", err)
		return
	}
	d.Zone.SetLocation(loc)
	if !first {
		logger.Info("Timezone changed", "timezone", loc.String())
	}
}

func (d *Daemon) syncPlanJobs(ctx context.Context, interval time.Duration, replace bool) {
	plans, err := d.Checker.Plans.LoadAll(ctx)
	if err != nil {
		logger.Error("could not load plans for per-plan checks", "error", err)
		return
	}
	policy := Keep
	if replace {
		policy = Replace
	}
	seen := map[int64]bool{}
	for _, p := range plans {
		id := int64(p.ID)
		seen[id] = true
		if _, err := d.Queue.EnqueuePeriodic(PlanTag(id), interval, policy, func(ctx context.Context) {
			d.Checker.CheckPlanID(ctx, id)
		}); err != nil {
			logger.Warn("could not schedule plan check", "plan", id, "error", err)
		}
	}
	d.mu.Lock()
	old := d.planJobs
	d.planJobs = seen
	d.mu.Unlock()
	for id := range old {
		if !seen[id] {
			d.ForgetPlan(id)
		}
	}
}

func (d *Daemon) clearPlanJobs() {
	d.mu.Lock()
	old := d.planJobs
	d.planJobs = nil
	d.mu.Unlock()
	for id := range old {
		d.Queue.Cancel(PlanTag(id))
	}
}

// scheduleStartupChecks checks each plan once shortly after start, spread by jitter.
func (d *Daemon) scheduleStartupChecks(ctx context.Context) {
	plans, err := d.Checker.Plans.LoadAll(ctx)
	if err != nil {
		logger.Error("could not load plans for startup checks", "error", err)
		return
	}
	for _, p := range plans {
		id := int64(p.ID)
		if _, err := d.Queue.EnqueueOnce(startupTag(id), d.Jitter(), Replace, func(ctx context.Context) {
			d.Checker.CheckPlanID(ctx, id)
		}); err != nil {
			logger.Warn("could not schedule startup check", "plan", id, "error", err)
		}
	}
}

func (d *Daemon) scheduleFollowUp(r PlanResult) {
	d.mu.Lock()
	minutes := d.current.NotStartedInterval
	d.mu.Unlock()
	if minutes < 1 {
		minutes = constants.DefaultNotStartedInterval
	}
	planID := int64(r.Plan.ID)
	if _, err := d.Queue.EnqueueOnce(FollowUpTag(r.ConversationID), time.Duration(minutes)*d.minute(), Replace, func(ctx context.Context) {
		d.Checker.CheckPlanID(ctx, planID)
	}); err != nil {
		logger.Debug("follow-up not scheduled", "conversation", r.ConversationID, "error", err)
	}
}

func (d *Daemon) poll(ctx context.Context) {
	ps, err := d.Settings.Planner(ctx)
	if err != nil {
		logger.Warn("settings poll failed", "error", err)
		return
	}
	d.apply(ctx, ps, false)
}

// Jobs lists the queued jobs in tag order.
func (d *Daemon) Jobs() []JobInfo {
	tags := d.Queue.Tags()
	out := make([]JobInfo, 0, len(tags))
	for _, tag := range tags {
		if info, ok := d.Queue.Job(tag); ok {
			out = append(out, info)
		}
	}
	return out
}

// ForgetPlan cancels every job belonging to a deleted plan.
func (d *Daemon) ForgetPlan(planID int64) {
	n := d.Queue.CancelPrefix(PlanTag(planID))
	n += d.Queue.CancelPrefix(FollowUpTag(planID))
	if n > 0 {
		logger.Debug("cancelled plan jobs", "plan", planID, "jobs", n)
	}
}
