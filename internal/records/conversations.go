package records

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
)

const lastGeneratedPrefix = "last_generated_message_"

func messageField(j int, field string) string {
	return "message_" + strconv.Itoa(j) + "_" + field
}

func encodeMessage(out map[string]string, j int, m models.Message) {
	out[messageField(j, "id")] = strconv.FormatInt(m.ID, 10)
	out[messageField(j, "text")] = m.Text
	out[messageField(j, "isUser")] = strconv.FormatBool(m.IsUser)
	out[messageField(j, "timestamp")] = strconv.FormatInt(m.Timestamp.UnixMilli(), 10)
}

var conversationCodec = Codec[models.Conversation]{
	Namespace: constants.NamespaceConversations,
	Prefix:    "conversation",
	ID:        func(c models.Conversation) int64 { return c.ID },
	Encode: func(c models.Conversation) map[string]string {
		out := map[string]string{
			"id":            strconv.FormatInt(c.ID, 10),
			"title":         c.Title,
			"timestamp":     strconv.FormatInt(c.Timestamp.UnixMilli(), 10),
			"plan_id":       strconv.FormatInt(c.PlanID, 10),
			"message_count": strconv.Itoa(len(c.Messages)),
		}
		for j, m := range c.Messages {
			encodeMessage(out, j, m)
		}
		return out
	},
	Decode: func(i int, f Fields) models.Conversation {
		c := models.Conversation{
			ID:        f.Int64("id", int64(i)),
			Title:     f.String("title", ""),
			Timestamp: time.UnixMilli(f.Int64("timestamp", 0)),
			PlanID:    f.Int64("plan_id", constants.FreeFormPlanID),
		}
		n := f.Int("message_count", 0)
		for j := 0; j < n; j++ {
			c.Messages = append(c.Messages, models.Message{
				ID:        f.Int64(messageField(j, "id"), int64(j)),
				Text:      f.String(messageField(j, "text"), ""),
				IsUser:    f.Bool(messageField(j, "isUser"), false),
				Timestamp: time.UnixMilli(f.Int64(messageField(j, "timestamp"), 0)),
			})
		}
		return c
	},
}

// Conversations is the conversation table plus message operations.
type Conversations struct {
	*Table[models.Conversation]
	clock clock.Clock
}

func NewConversations(store prefs.Store, clk clock.Clock) *Conversations {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Conversations{Table: NewTable(store, conversationCodec), clock: clk}
}

// CreateFreeForm starts a conversation without a plan. Its id is the
// creation time in milliseconds, bumped past any existing id.
func (c *Conversations) CreateFreeForm(ctx context.Context, title string) (models.Conversation, error) {
	now := c.clock.Now()
	conv := models.Conversation{Title: title, Timestamp: now, PlanID: constants.FreeFormPlanID}
	err := c.update(ctx, func(v *view[models.Conversation], ed *prefs.Editor) error {
		id := now.UnixMilli()
		for {
			if _, taken := v.index[id]; !taken {
				break
			}
			id++
		}
		conv.ID = id
		v.put(ed, conv)
		return nil
	})
	return conv, err
}

// FindOrCreateForPlan returns the plan's conversation, creating it with the
// plan's id and title on first use.
func (c *Conversations) FindOrCreateForPlan(ctx context.Context, plan models.Plan) (models.Conversation, bool, error) {
	var (
		conv    models.Conversation
		created bool
	)
	err := c.update(ctx, func(v *view[models.Conversation], ed *prefs.Editor) error {
		if existing, _, ok := v.get(int64(plan.ID)); ok {
			conv = existing
			return nil
		}
		conv = models.Conversation{
			ID:        int64(plan.ID),
			Title:     plan.Title,
			Timestamp: c.clock.Now(),
			PlanID:    int64(plan.ID),
		}
		created = true
		v.put(ed, conv)
		return nil
	})
	return conv, created, err
}

// AppendMessage adds msg to the end of the conversation and bumps its
// timestamp. A zero message id or timestamp is filled from the clock; ids are
// kept strictly increasing within the conversation. Returns the stored
// message and the new message count.
func (c *Conversations) AppendMessage(ctx context.Context, convID int64, msg models.Message) (models.Message, int, error) {
	count := 0
	err := c.update(ctx, func(v *view[models.Conversation], ed *prefs.Editor) error {
		i, ok := v.index[convID]
		if !ok {
			return fmt.Errorf("conversation %d: %w", convID, ErrNotFound)
		}
		now := c.clock.Now()
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		if msg.ID == 0 {
			msg.ID = msg.Timestamp.UnixMilli()
		}
		row := Fields{snap: v.snap, prefix: v.t.rowPrefix(i)}
		n := row.Int("message_count", 0)
		if n > 0 {
			if last := row.Int64(messageField(n-1, "id"), 0); msg.ID <= last {
				msg.ID = last + 1
			}
		}
		fields := map[string]string{}
		encodeMessage(fields, n, msg)
		ns := constants.NamespaceConversations
		for k, val := range fields {
			ed.PutString(ns, v.t.fieldKey(i, k), val)
		}
		count = n + 1
		ed.PutInt(ns, v.t.fieldKey(i, "message_count"), count)
		ed.PutInt64(ns, v.t.fieldKey(i, "timestamp"), now.UnixMilli())
		return nil
	})
	return msg, count, err
}

// ClearMessages drops every message while keeping id, title and plan link.
func (c *Conversations) ClearMessages(ctx context.Context, convID int64) error {
	return c.update(ctx, func(v *view[models.Conversation], ed *prefs.Editor) error {
		i, ok := v.index[convID]
		if !ok {
			return fmt.Errorf("conversation %d: %w", convID, ErrNotFound)
		}
		ns := constants.NamespaceConversations
		ed.RemovePrefix(ns, v.t.rowPrefix(i)+"message_")
		ed.PutInt(ns, v.t.fieldKey(i, "message_count"), 0)
		ed.PutInt64(ns, v.t.fieldKey(i, "timestamp"), c.clock.Now().UnixMilli())
		return nil
	})
}

// RecentUserMessages returns up to n of the newest user messages, oldest first.
func (c *Conversations) RecentUserMessages(ctx context.Context, convID int64, n int) ([]models.Message, error) {
	conv, ok, err := c.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", convID, ErrNotFound)
	}
	return conv.RecentUserMessages(n), nil
}

func (c *Conversations) SetLastGenerated(ctx context.Context, planID int64, at time.Time) error {
	return prefs.Edit(c.store).
		PutInt64(constants.NamespaceConversations, lastGeneratedPrefix+strconv.FormatInt(planID, 10), at.UnixMilli()).
		Commit(ctx)
}

func (c *Conversations) LastGenerated(ctx context.Context, planID int64) (time.Time, bool, error) {
	v, ok, err := c.store.Get(ctx, constants.NamespaceConversations, lastGeneratedPrefix+strconv.FormatInt(planID, 10))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// StatusSource resolves a conversation's effective status.
type StatusSource interface {
	Effective(ctx context.Context, conversationID int64) (models.Status, error)
}

// Categorize groups conversations by their plan status. Free-form
// conversations are "normal". Each group is newest first.
func (c *Conversations) Categorize(ctx context.Context, statuses StatusSource) (models.Categories, error) {
	var out models.Categories
	all, err := c.LoadAll(ctx)
	if err != nil {
		return out, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	for _, conv := range all {
		if !conv.HasPlan() {
			out.Normal = append(out.Normal, conv)
			continue
		}
		st, err := statuses.Effective(ctx, conv.ID)
		if err != nil {
			return out, err
		}
		switch st {
		case models.StatusWorking:
			out.Working = append(out.Working, conv)
		case models.StatusCompleted:
			out.Completed = append(out.Completed, conv)
		default:
			out.NotStarted = append(out.NotStarted, conv)
		}
	}
	return out, nil
}
