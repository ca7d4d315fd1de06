package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/planmate/internal/ai"
	"github.com/julianstephens/planmate/internal/broadcast"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/dispatcher"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
	"github.com/julianstephens/planmate/internal/records"
	"github.com/julianstephens/planmate/internal/scheduler"
	"github.com/julianstephens/planmate/internal/status"
)

type forgetter struct {
	ids    []int64
	queued []scheduler.JobInfo
}

func (f *forgetter) ForgetPlan(id int64) { f.ids = append(f.ids, id) }

func (f *forgetter) Jobs() []scheduler.JobInfo { return f.queued }

type fixture struct {
	srv  *Server
	http *httptest.Server
	jobs *forgetter
	plan models.Plan
	conv models.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := prefs.NewMemory()
	clk := clock.NewFixed(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	svc := records.NewService(store, clk)

	plan, err := svc.Plans.Create(ctx, models.Plan{Title: "Run", Day: time.Monday, StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)
	conv, _, err := svc.Conversations.FindOrCreateForPlan(ctx, plan)
	require.NoError(t, err)

	jobs := &forgetter{}
	srv := &Server{
		Records:  svc,
		Resolver: status.NewResolver(store, svc.Conversations),
		Writer:   status.NewWriter(store, svc.Plans),
		Hub:      broadcast.NewHub(),
		Metrics:  metrics.New(),
		Jobs:     jobs,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, http: ts, jobs: jobs, plan: plan, conv: conv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc", resp.Header.Get("X-Request-ID"))
}

func TestListPlans(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/plans", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plans := decode[[]models.Plan](t, resp)
	require.Len(t, plans, 1)
	assert.Equal(t, "Run", plans[0].Title)
}

func TestConversationsAreCategorized(t *testing.T) {
	f := newFixture(t)
	_, err := f.srv.Records.Conversations.CreateFreeForm(context.Background(), "chat")
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cats := decode[map[string][]conversationSummary](t, resp)
	assert.Len(t, cats["not_started"], 1)
	assert.Len(t, cats["normal"], 1)
	assert.Empty(t, cats["working"])
}

func TestGetConversationMarksOpened(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/conversations/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv := decode[models.Conversation](t, resp)
	assert.Equal(t, f.conv.ID, conv.ID)

	_, ok, err := f.srv.Records.Tracker.LastOpened(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/conversations/99", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/conversations/x", "").StatusCode)
}

func TestSendAndClearMessages(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.srv.Hub.Subscribe(4)
	defer cancel()

	resp := f.do(t, http.MethodPost, "/conversations/1/messages", `{"text":"on my way"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := decode[models.Message](t, resp)
	assert.True(t, msg.IsUser)
	assert.Equal(t, "on my way", msg.Text)

	ev := <-events
	assert.Equal(t, broadcast.EventConversationUpdated, ev.Type)
	assert.Equal(t, 1, ev.MessageCount)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/conversations/1/messages", `{"text":""}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/conversations/1/messages", `{`).StatusCode)

	resp = f.do(t, http.MethodDelete, "/conversations/1/messages", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	conv, ok, err := f.srv.Records.Conversations.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, "Run", conv.Title)
}

type chatSettings struct{ ai models.AISettings }

func (c chatSettings) AI(context.Context, int64) (models.AISettings, error)     { return c.ai, nil }
func (c chatSettings) ChatAI(context.Context, int64) (models.AISettings, error) { return c.ai, nil }
func (c chatSettings) Planner(context.Context) (models.PlannerSettings, error) {
	return models.DefaultPlannerSettings(), nil
}

func TestSendMessageWithReply(t *testing.T) {
	f := newFixture(t)
	var got ai.ChatRequest
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Nice, warm up first."}}]}`)
	}))
	t.Cleanup(endpoint.Close)

	settings := models.DefaultAISettings()
	settings.BaseURL = endpoint.URL
	settings.APIKey = "k"
	f.srv.Replier = &dispatcher.Dispatcher{
		Conversations: f.srv.Records.Conversations,
		Settings:      chatSettings{ai: settings},
		Events:        f.srv.Hub,
		Clock:         f.srv.Records.Clock,
	}

	resp := f.do(t, http.MethodPost, "/conversations/1/messages", `{"text":"on my way","reply":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[sendResponse](t, resp)
	assert.Equal(t, "on my way", body.Message.Text)
	require.NotNil(t, body.Reply)
	assert.False(t, body.Reply.IsUser)
	assert.Equal(t, "Nice, warm up first.", body.Reply.Text)
	assert.Empty(t, body.Error)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "on my way", got.Messages[1].Content)

	conv, _, err := f.srv.Records.Conversations.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[0].IsUser)
	assert.False(t, conv.Messages[1].IsUser)
}

func TestSendMessageReplyFailureIsStored(t *testing.T) {
	f := newFixture(t)
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(endpoint.Close)
	settings := models.DefaultAISettings()
	settings.BaseURL = endpoint.URL
	settings.APIKey = "bad"
	f.srv.Replier = &dispatcher.Dispatcher{
		Conversations: f.srv.Records.Conversations,
		Settings:      chatSettings{ai: settings},
		Clock:         f.srv.Records.Clock,
	}

	resp := f.do(t, http.MethodPost, "/conversations/1/messages", `{"text":"hi","reply":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[sendResponse](t, resp)
	require.NotNil(t, body.Reply)
	assert.Contains(t, body.Reply.Text, "authentication failed")
	assert.Equal(t, "http", body.Error)
}

func TestSendMessageReplyUnavailable(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/conversations/1/messages", `{"text":"hi","reply":true}`)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	conv, _, err := f.srv.Records.Conversations.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestStatusRoundTrip(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/conversations/1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusNotStarted, decode[statusBody](t, resp).Status)

	resp = f.do(t, http.MethodPut, "/conversations/1/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	plan, ok, err := f.srv.Records.Plans.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, plan.IsCompleted)

	resp = f.do(t, http.MethodGet, "/conversations/1/status", "")
	assert.Equal(t, models.StatusCompleted, decode[statusBody](t, resp).Status)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/conversations/1/status", `{"status":"done"}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/conversations/42/status", `{"status":"working"}`).StatusCode)
}

func TestJobsLists(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.jobs.queued = []scheduler.JobInfo{
		{ID: id, Tag: "periodic_check", Periodic: true, Interval: 15 * time.Minute, State: scheduler.StateScheduled},
		{ID: uuid.New(), Tag: "conversation_notify_1", State: scheduler.StateFiring},
	}

	resp := f.do(t, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, id.String(), got[0]["id"])
	assert.Equal(t, "scheduled", got[0]["state"])
	assert.Equal(t, float64(900), got[0]["interval_seconds"])
	assert.Equal(t, "firing", got[1]["state"])
	assert.NotContains(t, got[1], "interval_seconds")
}

func TestJobsEmptyWithoutScheduler(t *testing.T) {
	f := newFixture(t)
	f.srv.Jobs = nil
	resp := f.do(t, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Empty(t, got)
}

func TestDeletePlanForgetsJobs(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodDelete, "/plans/1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []int64{1}, f.jobs.ids)

	_, ok, err := f.srv.Records.Conversations.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/plans/1", "").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return f.srv.Hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.srv.Hub.Publish(broadcast.ConversationUpdated(1, 3, time.Now()))

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	var ev broadcast.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, int64(1), ev.ConversationID)
	assert.Equal(t, 3, ev.MessageCount)

	conn.Close(websocket.StatusNormalClosure, "")
}
