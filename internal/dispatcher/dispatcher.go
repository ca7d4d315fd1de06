// Package dispatcher generates a status-aware companion message for a plan and
// delivers it to the conversation, the notifier and any listeners.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/planmate/internal/ai"
	"github.com/julianstephens/planmate/internal/broadcast"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/metrics"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/notifier"
)

// Conversations is the conversation storage the dispatcher writes to.
type Conversations interface {
	Get(ctx context.Context, id int64) (models.Conversation, bool, error)
	AppendMessage(ctx context.Context, convID int64, msg models.Message) (models.Message, int, error)
	SetLastGenerated(ctx context.Context, planID int64, at time.Time) error
}

// Settings supplies AI and planner settings.
type Settings interface {
	AI(ctx context.Context, conversationID int64) (models.AISettings, error)
	ChatAI(ctx context.Context, conversationID int64) (models.AISettings, error)
	Planner(ctx context.Context) (models.PlannerSettings, error)
}

// NotificationLog records when a plan was last notified.
type NotificationLog interface {
	RecordNotification(ctx context.Context, planID int64, at time.Time) error
}

// ClientFactory builds a completer for resolved settings.
type ClientFactory func(models.AISettings) (ai.Completer, *ai.GenerationError)

// DefaultClientFactory returns an HTTP client for the configured endpoint.
func DefaultClientFactory(s models.AISettings) (ai.Completer, *ai.GenerationError) {
	c, gerr := ai.ForSettings(s)
	if gerr != nil {
		return nil, gerr
	}
	return c, nil
}

// Result is a successful generation.
type Result struct {
	Text   string
	Prompt string
}

// Outcome reports what Dispatch did. It is informational only.
type Outcome struct {
	Message      models.Message
	MessageCount int
	GenErr       *ai.GenerationError
	StoreErr     error
	Notified     bool
}

// OK reports whether generation and storage both succeeded.
func (o Outcome) OK() bool { return o.GenErr == nil && o.StoreErr == nil }

type Dispatcher struct {
	Conversations Conversations
	Settings      Settings
	Notifier      notifier.Notifier
	Tracker       NotificationLog
	Events        broadcast.Publisher
	Metrics       *metrics.Metrics
	Clock         clock.Clock
	NewClient     ClientFactory
}

func (d *Dispatcher) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

// Generate builds the prompt for plan and calls the completion endpoint.
func (d *Dispatcher) Generate(ctx context.Context, plan models.Plan, conv models.Conversation, st models.Status) (Result, *ai.GenerationError) {
	settings, err := d.Settings.AI(ctx, conv.ID)
	if err != nil {
		logger.Warn("falling back to default AI settings", "conversation", conv.ID, "error", err)
	}
	prompt := BuildPrompt(settings.SystemPrompt, conv.RecentUserMessages(settings.ConversationMemory), d.now(), st, plan)
	text, gerr := d.complete(ctx, settings, ai.NewRequest(settings, prompt, PlaceholderUserTurn))
	if gerr != nil {
		return Result{Prompt: prompt}, gerr
	}
	return Result{Text: text, Prompt: prompt}, nil
}

func (d *Dispatcher) complete(ctx context.Context, settings models.AISettings, req ai.ChatRequest) (string, *ai.GenerationError) {
	factory := d.NewClient
	if factory == nil {
		factory = DefaultClientFactory
	}
	client, gerr := factory(settings)
	if gerr != nil {
		return "", gerr
	}
	text, err := client.Complete(ctx, req)
	if err != nil {
		var ge *ai.GenerationError
		if errors.As(err, &ge) {
			return "", ge
		}
		return "", &ai.GenerationError{Category: ai.CategoryNetwork, Message: err.Error(), Err: err}
	}
	return text, nil
}

// Reply answers the conversation's recent user messages with the
// conversation's chat settings and appends the answer as an assistant
// message. Like Dispatch it never returns an error: a failed completion is
// stored as readable text and reported in the Outcome.
func (d *Dispatcher) Reply(ctx context.Context, convID int64) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("reply panicked", "conversation", convID, "panic", r)
			out.StoreErr = fmt.Errorf("reply panicked: %v", r)
		}
	}()

	conv, ok, err := d.Conversations.Get(ctx, convID)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("conversation %d does not exist", convID)
		}
		out.StoreErr = err
		return out
	}
	settings, err := d.Settings.ChatAI(ctx, conv.ID)
	if err != nil {
		logger.Warn("falling back to default AI settings", "conversation", conv.ID, "error", err)
	}

	recent := conv.RecentUserMessages(settings.ConversationMemory)
	turns := make([]string, 0, len(recent))
	for _, m := range recent {
		turns = append(turns, m.Text)
	}

	started := time.Now()
	text, gerr := d.complete(ctx, settings, ai.NewConversationRequest(settings, settings.SystemPrompt, turns))
	category := ""
	if gerr != nil {
		out.GenErr = gerr
		category = string(gerr.Category)
		text = ReplyErrorText(gerr)
		logger.Warn("reply failed", "conversation", conv.ID, "category", gerr.Category, "error", gerr.Err)
	}
	d.Metrics.ObserveDispatch(time.Since(started), category)

	msg, count, err := d.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: text, IsUser: false})
	if err != nil {
		out.StoreErr = err
		logger.Error("failed to store reply", "conversation", conv.ID, "error", err)
		return out
	}
	out.Message, out.MessageCount = msg, count
	if d.Events != nil {
		d.Events.Publish(broadcast.ConversationUpdated(conv.ID, count, d.now()))
	}
	logger.Debug("replied to conversation", "conversation", conv.ID, "turns", len(turns), "ok", gerr == nil)
	return out
}

// Dispatch generates a message for plan into conversation convID. Failures
// become transcript text and fields of the Outcome; Dispatch never returns an
// error and never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, plan models.Plan, convID int64, st models.Status) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", "plan", plan.ID, "panic", r)
			out.StoreErr = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()

	conv, ok, err := d.Conversations.Get(ctx, convID)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("conversation %d does not exist", convID)
		}
		out.StoreErr = err
		logger.Error("dispatch skipped", "plan", plan.ID, "conversation", convID, "error", err)
		return out
	}

	started := time.Now()
	res, gerr := d.Generate(ctx, plan, conv, st)
	category := ""
	text := res.Text
	if gerr != nil {
		out.GenErr = gerr
		category = string(gerr.Category)
		text = ErrorText(st, gerr)
		logger.Warn("generation failed", "plan", plan.ID, "category", gerr.Category, "error", gerr.Err)
	}
	d.Metrics.ObserveDispatch(time.Since(started), category)

	msg, count, err := d.Conversations.AppendMessage(ctx, conv.ID, models.Message{Text: text, IsUser: false})
	if err != nil {
		out.StoreErr = err
		logger.Error("failed to store generated message", "conversation", conv.ID, "error", err)
		return out
	}
	out.Message, out.MessageCount = msg, count

	if conv.HasPlan() {
		if err := d.Conversations.SetLastGenerated(ctx, conv.PlanID, msg.Timestamp); err != nil {
			logger.Warn("failed to record generation time", "plan", conv.PlanID, "error", err)
		}
	}
	if d.Events != nil {
		d.Events.Publish(broadcast.ConversationUpdated(conv.ID, count, d.now()))
	}
	out.Notified = d.notify(ctx, conv, msg)
	logger.Info("Dispatched message", "plan", plan.ID, "conversation", conv.ID, "status", st, "ok", gerr == nil)
	return out
}

func (d *Dispatcher) notify(ctx context.Context, conv models.Conversation, msg models.Message) bool {
	if d.Notifier == nil {
		return false
	}
	ps, err := d.Settings.Planner(ctx)
	if err != nil {
		logger.Warn("using default planner settings", "error", err)
	}
	if !ps.NotificationsEnabled {
		return false
	}
	err = d.Notifier.Notify(ctx, notifier.Notification{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Text:           msg.Text,
		Sound:          ps.NotificationSound,
		Vibrate:        ps.NotificationVibration,
	})
	d.Metrics.ObserveNotification(err)
	if err != nil {
		logger.Debug("notification not delivered", "conversation", conv.ID, "error", err)
		return false
	}
	if d.Tracker != nil && conv.HasPlan() {
		if err := d.Tracker.RecordNotification(ctx, conv.PlanID, d.now()); err != nil {
			logger.Warn("failed to record notification", "plan", conv.PlanID, "error", err)
		}
	}
	return true
}
