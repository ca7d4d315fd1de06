package plans

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/records"
	"github.com/julianstephens/planmate/internal/storage/sqlite"
)

func newContext(t *testing.T) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "planmate.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })
	out := &bytes.Buffer{}
	return &cli.Context{
		Store: store,
		Out:   out,
		Clock: clock.NewFixed(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)),
	}, out
}

func addRun(t *testing.T, ctx *cli.Context) models.Plan {
	t.Helper()
	require.NoError(t, (&PlanAddCmd{Title: "Run", Day: "monday", Start: "09:00", End: "10:00"}).Run(ctx))
	p, ok, err := ctx.Services().Records.Plans.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	return p
}

func TestPlanAddCmd(t *testing.T) {
	ctx, out := newContext(t)
	p := addRun(t, ctx)
	assert.Equal(t, "Run", p.Title)
	assert.Equal(t, time.Monday, p.Day)
	assert.Contains(t, out.String(), "Added plan: Run (ID: 1")
}

func TestPlanAddCmdDefaultsEnd(t *testing.T) {
	ctx, _ := newContext(t)
	require.NoError(t, (&PlanAddCmd{Title: "Late", Day: "7", Start: "23:30"}).Run(ctx))
	p, _, err := ctx.Services().Records.Plans.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, p.Day)
	assert.Equal(t, "00:30", p.EndTime)
}

func TestPlanAddCmdRejectsBadInput(t *testing.T) {
	ctx, _ := newContext(t)
	assert.Error(t, (&PlanAddCmd{Title: "X", Day: "someday", Start: "09:00"}).Run(ctx))
	assert.Error(t, (&PlanAddCmd{Title: "X", Day: "monday", Start: "25:00", End: "26:00"}).Run(ctx))
}

func TestPlanAddCmdUsesForm(t *testing.T) {
	ctx, _ := newContext(t)
	prev := runForm
	t.Cleanup(func() { runForm = prev })
	runForm = func(fm *PlanFormModel) error {
		fm.Title = "  Read  "
		fm.Daily = true
		return nil
	}

	require.NoError(t, (&PlanAddCmd{Day: "monday", Start: "20:00"}).Run(ctx))
	p, _, err := ctx.Services().Records.Plans.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Read", p.Title)
	assert.True(t, p.IsDaily)
	assert.Equal(t, "21:00", p.EndTime)
}

func TestPlanEditCmdRenamesConversation(t *testing.T) {
	ctx, out := newContext(t)
	bg := context.Background()
	p := addRun(t, ctx)
	_, _, err := ctx.Services().Records.Conversations.FindOrCreateForPlan(bg, p)
	require.NoError(t, err)

	title := "Morning run"
	require.NoError(t, (&PlanEditCmd{ID: p.ID, Title: &title}).Run(ctx))
	assert.Contains(t, out.String(), "Updated plan: Morning run")

	conv, ok, err := ctx.Services().Records.Conversations.Get(bg, int64(p.ID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Morning run", conv.Title)
}

func TestPlanEditCmdMissing(t *testing.T) {
	ctx, _ := newContext(t)
	title := "x"
	err := (&PlanEditCmd{ID: 9, Title: &title}).Run(ctx)
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestPlanListCmd(t *testing.T) {
	ctx, out := newContext(t)
	addRun(t, ctx)
	require.NoError(t, (&PlanAddCmd{Title: "Yoga", Day: "tuesday", Start: "07:00"}).Run(ctx))
	out.Reset()

	require.NoError(t, (&PlanListCmd{}).Run(ctx))
	assert.Contains(t, out.String(), "Run")
	assert.Contains(t, out.String(), "Yoga")

	out.Reset()
	require.NoError(t, (&PlanListCmd{Day: "tuesday"}).Run(ctx))
	assert.NotContains(t, out.String(), "Run")
	assert.Contains(t, out.String(), "Yoga")
}

func TestPlanListCmdEmpty(t *testing.T) {
	ctx, out := newContext(t)
	require.NoError(t, (&PlanListCmd{}).Run(ctx))
	assert.Contains(t, out.String(), "No plans found")
}

func TestPlanDeleteCmd(t *testing.T) {
	ctx, out := newContext(t)
	bg := context.Background()
	p := addRun(t, ctx)
	_, _, err := ctx.Services().Records.Conversations.FindOrCreateForPlan(bg, p)
	require.NoError(t, err)

	ctx.Confirm = func(string) (bool, error) { return false, nil }
	require.NoError(t, (&PlanDeleteCmd{ID: p.ID}).Run(ctx))
	assert.Contains(t, out.String(), "cancelled")
	n, err := ctx.Services().Records.Plans.Count(bg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, (&PlanDeleteCmd{ID: p.ID, Yes: true}).Run(ctx))
	n, err = ctx.Services().Records.Plans.Count(bg)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := ctx.Services().Records.Conversations.Get(bg, int64(p.ID))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlanCompleteCmd(t *testing.T) {
	ctx, _ := newContext(t)
	bg := context.Background()
	p := addRun(t, ctx)

	require.NoError(t, (&PlanCompleteCmd{ID: p.ID}).Run(ctx))
	got, _, err := ctx.Services().Records.Plans.Get(bg, int64(p.ID))
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	st, err := ctx.Services().Resolver.ForPlan(bg, int64(p.ID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, st)

	require.NoError(t, (&PlanCompleteCmd{ID: p.ID, Undo: true}).Run(ctx))
	got, _, err = ctx.Services().Records.Plans.Get(bg, int64(p.ID))
	require.NoError(t, err)
	assert.False(t, got.IsCompleted)
}
