package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
)

var monday = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *prefs.Memory) {
	t.Helper()
	m := prefs.NewMemory()
	return NewService(m, clock.NewFixed(monday)), m
}

func testPlan(title string) models.Plan {
	return models.Plan{Title: title, Day: time.Monday, StartTime: "09:00", EndTime: "10:00"}
}

func TestPlanCreateAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	first, err := s.Plans.Create(ctx, testPlan("a"))
	require.NoError(t, err)
	second, err := s.Plans.Create(ctx, testPlan("b"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)

	_, err = s.Plans.Create(ctx, models.Plan{Title: "bad", StartTime: "9am", EndTime: "10:00"})
	assert.Error(t, err)
	bad := testPlan("bad day")
	bad.Day = time.Weekday(9)
	_, err = s.Plans.Create(ctx, bad)
	assert.Error(t, err)
}

func TestPlanDeleteShiftsRows(t *testing.T) {
	ctx := context.Background()
	s, m := newService(t)

	const n = 5
	for i := 0; i < n; i++ {
		p := testPlan(fmt.Sprintf("plan %d", i))
		p.Description = fmt.Sprintf("desc %d", i)
		p.IsDaily = i%2 == 0
		_, err := s.Plans.Create(ctx, p)
		require.NoError(t, err)
	}
	before, err := s.Plans.LoadAll(ctx)
	require.NoError(t, err)

	const k = 2
	ok, err := s.Plans.Delete(ctx, int64(before[k].ID))
	require.NoError(t, err)
	require.True(t, ok)

	after, err := s.Plans.LoadAll(ctx)
	require.NoError(t, err)
	want := append(append([]models.Plan{}, before[:k]...), before[k+1:]...)
	assert.Equal(t, want, after)

	count, err := s.Plans.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n-1, count)

	all, err := m.All(ctx, constants.NamespacePlans)
	require.NoError(t, err)
	for key := range all {
		assert.NotContains(t, key, fmt.Sprintf("plan_%d_", n-1), "last slot must be emptied")
	}

	ok, err = s.Plans.Delete(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlanDecodeDefaults(t *testing.T) {
	ctx := context.Background()
	s, m := newService(t)
	require.NoError(t, prefs.Edit(m).
		PutInt(constants.NamespacePlans, "plan_count", 1).
		PutString(constants.NamespacePlans, "plan_0_title", "bare").
		PutString(constants.NamespacePlans, "plan_0_day", "nine").
		Commit(ctx))

	plans, err := s.Plans.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	p := plans[0]
	assert.Equal(t, 0, p.ID)
	assert.Equal(t, time.Monday, p.Day)
	assert.Equal(t, "09:00", p.StartTime)
	assert.Equal(t, "09:00", p.EndTime)
}

func TestAppendAndClearMessages(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	plan, err := s.Plans.Create(ctx, testPlan("study"))
	require.NoError(t, err)
	conv, created, err := s.Conversations.FindOrCreateForPlan(ctx, plan)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, int64(plan.ID), conv.ID)

	_, created, err = s.Conversations.FindOrCreateForPlan(ctx, plan)
	require.NoError(t, err)
	assert.False(t, created, "one conversation per plan")

	first, count, err := s.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: "hello", IsUser: true})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	second, count, err := s.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Greater(t, second.ID, first.ID, "ids stay unique under a frozen clock")

	got, ok, err := s.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hi there", got.Messages[1].Text)
	assert.False(t, got.Messages[1].IsUser)

	require.NoError(t, s.ClearConversation(ctx, conv.ID))
	got, _, err = s.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "study", got.Title)
	assert.Equal(t, int64(plan.ID), got.PlanID)

	_, _, err = s.Conversations.AppendMessage(ctx, 404, models.Message{Text: "x"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s, m := newService(t)
	conv, err := s.Conversations.CreateFreeForm(ctx, "busy")
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: fmt.Sprintf("msg %d", i), IsUser: i%2 == 0})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	raw, err := m.All(ctx, constants.NamespaceConversations)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(n), raw["conversation_0_message_count"])

	got, ok, err := s.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Messages, n)
	texts := map[string]bool{}
	for i, msg := range got.Messages {
		texts[msg.Text] = true
		if i > 0 {
			assert.Greater(t, msg.ID, got.Messages[i-1].ID, "ids must be distinct and increasing")
		}
	}
	assert.Len(t, texts, n, "every appended message must be stored")
}

func TestRecentUserMessages(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	conv, err := s.Conversations.CreateFreeForm(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, monday.UnixMilli(), conv.ID)

	for i := 0; i < 4; i++ {
		_, _, err := s.SendUserMessage(ctx, conv.ID, fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		_, _, err = s.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: "ai"})
		require.NoError(t, err)
	}
	recent, err := s.Conversations.RecentUserMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "u2", recent[0].Text)
	assert.Equal(t, "u3", recent[1].Text)
}

type fakeCleaner struct{ planIDs []int64 }

func (f *fakeCleaner) QueueClear(ed *prefs.Editor, planID, convID int64) {
	f.planIDs = append(f.planIDs, planID)
	ed.Remove(constants.NamespacePlanStatus, fmt.Sprintf("plan_%d_status", planID))
}

func TestDeletePlanCascades(t *testing.T) {
	ctx := context.Background()
	s, m := newService(t)

	plan, err := s.Plans.Create(ctx, testPlan("run"))
	require.NoError(t, err)
	other, err := s.Plans.Create(ctx, testPlan("read"))
	require.NoError(t, err)
	for _, p := range []models.Plan{plan, other} {
		_, _, err := s.Conversations.FindOrCreateForPlan(ctx, p)
		require.NoError(t, err)
	}
	pid := int64(plan.ID)
	require.NoError(t, s.Tracker.RecordNotification(ctx, pid, monday))
	require.NoError(t, s.Tracker.MarkOpened(ctx, pid, monday))
	require.NoError(t, s.Tracker.RecordNotification(ctx, int64(other.ID), monday))
	require.NoError(t, s.Conversations.SetLastGenerated(ctx, pid, monday))
	require.NoError(t, prefs.Edit(m).PutString(constants.NamespacePlanStatus, "plan_1_status", "working").Commit(ctx))

	cleaner := &fakeCleaner{}
	require.NoError(t, s.DeletePlan(ctx, pid, cleaner))
	assert.Equal(t, []int64{pid}, cleaner.planIDs)

	_, ok, err := s.Conversations.Get(ctx, pid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Conversations.Get(ctx, int64(other.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = s.Tracker.LastNotification(ctx, pid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Tracker.LastOpened(ctx, pid)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Tracker.LastNotification(ctx, int64(other.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = s.Conversations.LastGenerated(ctx, pid)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.DeletePlan(ctx, pid, cleaner), ErrNotFound)
}

func TestDeleteConversationKeepsPlanLinked(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	plan, err := s.Plans.Create(ctx, testPlan("x"))
	require.NoError(t, err)
	conv, _, err := s.Conversations.FindOrCreateForPlan(ctx, plan)
	require.NoError(t, err)
	_, _, err = s.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: "hey"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID, nil))
	got, ok, err := s.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, ok, "plan conversations are cleared, not deleted")
	assert.Empty(t, got.Messages)

	free, err := s.Conversations.CreateFreeForm(ctx, "free")
	require.NoError(t, err)
	require.NoError(t, s.DeleteConversation(ctx, free.ID, nil))
	_, ok, err = s.Conversations.Get(ctx, free.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

type staticStatuses map[int64]models.Status

func (s staticStatuses) Effective(_ context.Context, id int64) (models.Status, error) {
	return s[id], nil
}

func TestCategorize(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	for _, title := range []string{"a", "b", "c"} {
		p, err := s.Plans.Create(ctx, testPlan(title))
		require.NoError(t, err)
		_, _, err = s.Conversations.FindOrCreateForPlan(ctx, p)
		require.NoError(t, err)
	}
	_, err := s.Conversations.CreateFreeForm(ctx, "free")
	require.NoError(t, err)

	cats, err := s.Conversations.Categorize(ctx, staticStatuses{1: models.StatusWorking, 2: models.StatusCompleted, 3: "bogus"})
	require.NoError(t, err)
	require.Len(t, cats.Working, 1)
	require.Len(t, cats.Completed, 1)
	require.Len(t, cats.NotStarted, 1)
	require.Len(t, cats.Normal, 1)
	assert.Equal(t, "free", cats.Normal[0].Title)
}

func TestReplaceAll(t *testing.T) {
	ctx := context.Background()
	s, m := newService(t)
	for i := 0; i < 3; i++ {
		_, err := s.Plans.Create(ctx, testPlan(fmt.Sprintf("old %d", i)))
		require.NoError(t, err)
	}

	plans := []models.Plan{{ID: 7, Title: "new", Day: time.Friday, StartTime: "08:00", EndTime: "08:30"}}
	convs := []models.Conversation{{ID: 7, Title: "new", PlanID: 7, Timestamp: monday,
		Messages: []models.Message{{ID: 1, Text: "hi", Timestamp: monday}}}}
	err := s.ReplaceAll(ctx, plans, convs, func(ed *prefs.Editor) {
		ed.PutString(constants.NamespacePlanStatus, "plan_7_status", "working")
	})
	require.NoError(t, err)

	got, err := s.Plans.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].ID)
	raw, err := m.All(ctx, constants.NamespacePlans)
	require.NoError(t, err)
	assert.NotContains(t, raw, "plan_2_title")

	conv, ok, err := s.Conversations.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, conv.Messages, 1)

	v, ok, err := m.Get(ctx, constants.NamespacePlanStatus, "plan_7_status")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "working", v)
}

func TestReplaceAllRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	_, err := s.Plans.Create(ctx, testPlan("keep"))
	require.NoError(t, err)

	dup := []models.Plan{testPlan("a"), testPlan("b")}
	dup[0].ID, dup[1].ID = 3, 3
	assert.Error(t, s.ReplaceAll(ctx, dup, nil, nil))
	assert.Error(t, s.ReplaceAll(ctx, []models.Plan{{ID: 1, Title: "x", StartTime: "nope", EndTime: "10:00"}}, nil, nil))

	got, err := s.Plans.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].Title)
}
