package convs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
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

var monday = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func newContext(t *testing.T) (*cli.Context, *bytes.Buffer, models.Conversation) {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "planmate.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })
	out := &bytes.Buffer{}
	ctx := &cli.Context{Store: store, Out: out, Clock: clock.NewFixed(monday)}

	bg := context.Background()
	svc := ctx.Services().Records
	plan, err := svc.Plans.Create(bg, models.Plan{Title: "Run", Day: time.Monday, StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)
	conv, _, err := svc.Conversations.FindOrCreateForPlan(bg, plan)
	require.NoError(t, err)
	return ctx, out, conv
}

func TestConvListCmd(t *testing.T) {
	ctx, out, conv := newContext(t)
	require.NoError(t, (&ConvNewCmd{Title: "Ideas"}).Run(ctx))
	_, _, err := ctx.Services().Records.Conversations.AppendMessage(context.Background(), conv.ID,
		models.Message{Text: "Time to\nlace up!"})
	require.NoError(t, err)
	out.Reset()

	require.NoError(t, (&ConvListCmd{}).Run(ctx))
	assert.Contains(t, out.String(), "Not started")
	assert.Contains(t, out.String(), "Run")
	assert.Contains(t, out.String(), "Ideas")
	assert.Contains(t, out.String(), "Last reply")
	assert.Contains(t, out.String(), "Time to lace up!")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("  short \n"))
	long := strings.Repeat("a", 60)
	got := preview(long)
	assert.Len(t, []rune(got), previewLen)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestConvNewCmdRejectsBlank(t *testing.T) {
	ctx, _, _ := newContext(t)
	assert.Error(t, (&ConvNewCmd{Title: "  "}).Run(ctx))
}

func TestConvSendAndShow(t *testing.T) {
	ctx, out, conv := newContext(t)
	bg := context.Background()

	require.NoError(t, (&ConvSendCmd{ID: conv.ID, Text: "on my way"}).Run(ctx))
	assert.Contains(t, out.String(), "1 message(s)")

	out.Reset()
	require.NoError(t, (&ConvShowCmd{ID: conv.ID}).Run(ctx))
	assert.Contains(t, out.String(), "on my way")
	assert.Contains(t, out.String(), "last reminder -")
	assert.NotContains(t, out.String(), "last reply -")

	at, ok, err := ctx.Services().Records.Tracker.LastOpened(bg, conv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(monday))
}

func configureEndpoint(t *testing.T, ctx *cli.Context, convID int64, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	bg := context.Background()
	st := ctx.Services().Settings
	ai := models.DefaultAISettings()
	ai.BaseURL = srv.URL
	ai.ModelName = "test-model"
	require.NoError(t, st.SaveAI(bg, ai, -1))
	require.NoError(t, st.SetConversationKey(bg, convID, "conv-key"))
}

func TestConvSendWithReply(t *testing.T) {
	ctx, out, conv := newContext(t)
	var got struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	configureEndpoint(t, ctx, conv.ID, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer conv-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Nice pace!"}}]}`))
	})

	require.NoError(t, (&ConvSendCmd{ID: conv.ID, Text: "halfway there", Reply: true}).Run(ctx))
	assert.Contains(t, out.String(), "Nice pace!")
	require.NotEmpty(t, got.Messages)
	assert.Equal(t, "halfway there", got.Messages[len(got.Messages)-1].Content)

	stored, err := load(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.True(t, stored.Messages[0].IsUser)
	assert.False(t, stored.Messages[1].IsUser)
	assert.Equal(t, "Nice pace!", stored.Messages[1].Text)
}

func TestConvSendReplyFailureIsStored(t *testing.T) {
	ctx, out, conv := newContext(t)
	configureEndpoint(t, ctx, conv.ID, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	})

	require.NoError(t, (&ConvSendCmd{ID: conv.ID, Text: "hello", Reply: true}).Run(ctx))
	assert.Contains(t, out.String(), "Error: ")

	stored, err := load(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Contains(t, stored.Messages[1].Text, "Error: ")
}

func TestConvShowCmdMissing(t *testing.T) {
	ctx, _, _ := newContext(t)
	assert.ErrorIs(t, (&ConvShowCmd{ID: 404}).Run(ctx), records.ErrNotFound)
}

func TestConvClearCmd(t *testing.T) {
	ctx, _, conv := newContext(t)
	require.NoError(t, (&ConvSendCmd{ID: conv.ID, Text: "hi"}).Run(ctx))

	ctx.Confirm = func(string) (bool, error) { return false, nil }
	require.NoError(t, (&ConvClearCmd{ID: conv.ID}).Run(ctx))
	got, err := load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)

	require.NoError(t, (&ConvClearCmd{ID: conv.ID, Yes: true}).Run(ctx))
	got, err = load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestConvDeleteCmd(t *testing.T) {
	ctx, out, planConv := newContext(t)
	require.NoError(t, (&ConvNewCmd{Title: "Ideas"}).Run(ctx))
	cats, err := ctx.Services().Records.Conversations.Categorize(context.Background(), ctx.Services().Resolver)
	require.NoError(t, err)
	require.Len(t, cats.Normal, 1)
	free := cats.Normal[0]

	require.NoError(t, (&ConvDeleteCmd{ID: free.ID, Yes: true}).Run(ctx))
	_, err = load(ctx, free.ID)
	assert.ErrorIs(t, err, records.ErrNotFound)

	// A plan's conversation survives, emptied.
	require.NoError(t, (&ConvSendCmd{ID: planConv.ID, Text: "hi"}).Run(ctx))
	out.Reset()
	require.NoError(t, (&ConvDeleteCmd{ID: planConv.ID, Yes: true}).Run(ctx))
	assert.Contains(t, out.String(), "Cleared conversation")
	got, err := load(ctx, planConv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestConvStatusCmd(t *testing.T) {
	ctx, out, conv := newContext(t)
	bg := context.Background()

	require.NoError(t, (&ConvStatusCmd{ID: conv.ID}).Run(ctx))
	assert.Contains(t, out.String(), "not_started")

	require.NoError(t, (&ConvStatusCmd{ID: conv.ID, Status: "completed"}).Run(ctx))
	plan, _, err := ctx.Services().Records.Plans.Get(bg, conv.PlanID)
	require.NoError(t, err)
	assert.True(t, plan.IsCompleted)

	assert.Error(t, (&ConvStatusCmd{ID: conv.ID, Status: "done"}).Run(ctx))
}
