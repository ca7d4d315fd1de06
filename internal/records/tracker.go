package records

import (
	"context"
	"strconv"
	"time"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/prefs"
)

// Tracker records notification and activity timestamps.
type Tracker struct {
	store prefs.Store
}

func NewTracker(store prefs.Store) *Tracker {
	return &Tracker{store: store}
}

func planTrackerPrefix(planID int64) string {
	return "plan_" + strconv.FormatInt(planID, 10) + "_"
}

func lastOpenedKey(convID int64) string {
	return "conversation_" + strconv.FormatInt(convID, 10) + "_last_opened"
}

func (t *Tracker) put(ctx context.Context, key string, at time.Time) error {
	return prefs.Edit(t.store).
		PutInt64(constants.NamespaceNotificationTracker, key, at.UnixMilli()).
		Commit(ctx)
}

func (t *Tracker) get(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := t.store.Get(ctx, constants.NamespaceNotificationTracker, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (t *Tracker) RecordNotification(ctx context.Context, planID int64, at time.Time) error {
	return t.put(ctx, planTrackerPrefix(planID)+"last_notification", at)
}

func (t *Tracker) LastNotification(ctx context.Context, planID int64) (time.Time, bool, error) {
	return t.get(ctx, planTrackerPrefix(planID)+"last_notification")
}

func (t *Tracker) RecordUserMessage(ctx context.Context, planID int64, at time.Time) error {
	return t.put(ctx, planTrackerPrefix(planID)+"last_user_message", at)
}

func (t *Tracker) LastUserMessage(ctx context.Context, planID int64) (time.Time, bool, error) {
	return t.get(ctx, planTrackerPrefix(planID)+"last_user_message")
}

func (t *Tracker) MarkOpened(ctx context.Context, convID int64, at time.Time) error {
	return t.put(ctx, lastOpenedKey(convID), at)
}

func (t *Tracker) LastOpened(ctx context.Context, convID int64) (time.Time, bool, error) {
	return t.get(ctx, lastOpenedKey(convID))
}

// clear queues removal of every tracker key for the plan and its conversation.
func (t *Tracker) clear(ed *prefs.Editor, planID, convID int64) {
	ed.RemovePrefix(constants.NamespaceNotificationTracker, planTrackerPrefix(planID))
	ed.Remove(constants.NamespaceNotificationTracker, lastOpenedKey(convID))
}
