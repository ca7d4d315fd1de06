package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/planmate/internal/ai"
	"github.com/julianstephens/planmate/internal/broadcast"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/notifier"
	"github.com/julianstephens/planmate/internal/prefs"
	"github.com/julianstephens/planmate/internal/records"
)

var mondayMorning = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

type fakeSettings struct {
	ai      models.AISettings
	chat    models.AISettings
	planner models.PlannerSettings
}

func (f fakeSettings) AI(context.Context, int64) (models.AISettings, error)     { return f.ai, nil }
func (f fakeSettings) ChatAI(context.Context, int64) (models.AISettings, error) { return f.chat, nil }
func (f fakeSettings) Planner(context.Context) (models.PlannerSettings, error) {
	return f.planner, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notifier.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type env struct {
	svc   *records.Service
	d     *Dispatcher
	notes *recordingNotifier
	hub   *broadcast.Hub
	plan  models.Plan
	conv  models.Conversation
}

func newEnv(t *testing.T, handler http.HandlerFunc) *env {
	t.Helper()
	ctx := context.Background()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clk := clock.NewFixed(mondayMorning)
	svc := records.NewService(prefs.NewMemory(), clk)
	plan, err := svc.Plans.Create(ctx, models.Plan{Title: "Study", Description: "Chapter 3", Day: time.Monday, StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)
	conv, _, err := svc.Conversations.FindOrCreateForPlan(ctx, plan)
	require.NoError(t, err)

	aiSettings := models.DefaultAISettings()
	aiSettings.BaseURL = srv.URL
	aiSettings.APIKey = "test-key"
	chatSettings := aiSettings
	chatSettings.MaxTokens = 2048
	notes := &recordingNotifier{}
	hub := broadcast.NewHub()
	return &env{
		svc:   svc,
		notes: notes,
		hub:   hub,
		plan:  plan,
		conv:  conv,
		d: &Dispatcher{
			Conversations: svc.Conversations,
			Settings:      fakeSettings{ai: aiSettings, chat: chatSettings, planner: models.DefaultPlannerSettings()},
			Notifier:      notes,
			Tracker:       svc.Tracker,
			Events:        hub,
			Metrics:       metrics.New(),
			Clock:         clk,
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	plan := models.Plan{Title: "Run", Description: "5k", StartTime: "07:00", EndTime: "08:00"}
	history := []models.Message{{Text: "I'm tired", IsUser: true}}

	got := BuildPrompt("You are a coach.", history, mondayMorning, models.StatusWorking, plan)
	for _, want := range []string{
		"You are a coach.\nStay in character.",
		"User: I'm tired",
		"Current time: 09:30",
		"Current day: Monday",
		"Conversation status: The plan is in progress, help the user stay focused",
		"- Title: Run",
		"- Description: 5k",
		"- Time: 07:00 to 08:00",
	} {
		assert.Contains(t, got, want)
	}

	bare := BuildPrompt("p", nil, mondayMorning, models.StatusCompleted, plan)
	assert.NotContains(t, bare, "Earlier messages")
	assert.Contains(t, bare, "Conversation status: Plan status update")
}

func TestDispatchSuccess(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Open chapter 3 now."}}]}`)
	})
	events, cancel := e.hub.Subscribe(4)
	defer cancel()

	out := e.d.Dispatch(ctx, e.plan, e.conv.ID, models.StatusNotStarted)
	require.True(t, out.OK(), "outcome: %+v", out)
	assert.Equal(t, 1, out.MessageCount)
	assert.True(t, out.Notified)

	conv, _, err := e.svc.Conversations.Get(ctx, e.conv.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "Open chapter 3 now.", conv.Messages[0].Text)
	assert.False(t, conv.Messages[0].IsUser)

	require.Len(t, e.notes.sent, 1)
	assert.Equal(t, "Study", e.notes.sent[0].Title)
	assert.Equal(t, int64(2000)+e.conv.ID, e.notes.sent[0].ID())

	ev := <-events
	assert.Equal(t, broadcast.EventConversationUpdated, ev.Type)
	assert.Equal(t, 1, ev.MessageCount)

	_, ok, err := e.svc.Conversations.LastGenerated(ctx, int64(e.plan.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = e.svc.Tracker.LastNotification(ctx, int64(e.plan.ID))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDispatchUnauthorizedBecomesMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	out := e.d.Dispatch(ctx, e.plan, e.conv.ID, models.StatusWorking)
	require.NotNil(t, out.GenErr)
	assert.NoError(t, out.StoreErr)
	assert.Equal(t, 1, out.MessageCount)
	assert.True(t, strings.HasPrefix(out.Message.Text, "[The plan is in progress"))
	assert.Contains(t, out.Message.Text, "authentication failed")
}

func TestDispatchMissingKeySkipsNetwork(t *testing.T) {
	ctx := context.Background()
	called := false
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	fs := e.d.Settings.(fakeSettings)
	fs.ai.APIKey = ""
	fs.planner.NotificationsEnabled = false
	e.d.Settings = fs

	out := e.d.Dispatch(ctx, e.plan, e.conv.ID, models.StatusNotStarted)
	assert.False(t, called)
	require.NotNil(t, out.GenErr)
	assert.Contains(t, out.Message.Text, "API key is not configured")
	assert.False(t, out.Notified, "notifications disabled")
	assert.Empty(t, e.notes.sent)
}

func TestDispatchUnknownConversation(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	out := e.d.Dispatch(context.Background(), e.plan, 999, models.StatusWorking)
	assert.Error(t, out.StoreErr)
	assert.False(t, out.OK())
}

func TestReplySendsRecentUserTurns(t *testing.T) {
	ctx := context.Background()
	reqs := make(chan ai.ChatRequest, 1)
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		var req ai.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		reqs <- req
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Start with the first exercise."}}]}`)
	})
	fs := e.d.Settings.(fakeSettings)
	fs.chat.ConversationMemory = 2
	e.d.Settings = fs

	for _, m := range []models.Message{
		{Text: "one", IsUser: true},
		{Text: "assistant text", IsUser: false},
		{Text: "two", IsUser: true},
		{Text: "three", IsUser: true},
	} {
		_, _, err := e.svc.Conversations.AppendMessage(ctx, e.conv.ID, m)
		require.NoError(t, err)
	}
	events, cancel := e.hub.Subscribe(4)
	defer cancel()

	out := e.d.Reply(ctx, e.conv.ID)
	require.True(t, out.OK(), "outcome: %+v", out)
	assert.Equal(t, 5, out.MessageCount)
	assert.False(t, out.Message.IsUser)
	assert.Equal(t, "Start with the first exercise.", out.Message.Text)
	assert.False(t, out.Notified, "replies are not pushed as notifications")
	assert.Empty(t, e.notes.sent)

	req := <-reqs
	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, fs.chat.SystemPrompt, req.Messages[0].Content)
	assert.Equal(t, ai.ChatMessage{Role: "user", Content: "two"}, req.Messages[1])
	assert.Equal(t, ai.ChatMessage{Role: "user", Content: "three"}, req.Messages[2])

	ev := <-events
	assert.Equal(t, e.conv.ID, ev.ConversationID)
	assert.Equal(t, 5, ev.MessageCount)
}

func TestReplyFailureBecomesMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, _, err := e.svc.Conversations.AppendMessage(ctx, e.conv.ID, models.Message{Text: "hi", IsUser: true})
	require.NoError(t, err)

	out := e.d.Reply(ctx, e.conv.ID)
	require.NotNil(t, out.GenErr)
	assert.Equal(t, ai.CategoryHTTP, out.GenErr.Category)
	assert.NoError(t, out.StoreErr)
	assert.Equal(t, 2, out.MessageCount)
	assert.True(t, strings.HasPrefix(out.Message.Text, "Error: "))
	assert.Contains(t, out.Message.Text, "authentication failed")
}

func TestReplyUnknownConversation(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	out := e.d.Reply(context.Background(), 999)
	assert.Error(t, out.StoreErr)
	assert.False(t, out.OK())
}
