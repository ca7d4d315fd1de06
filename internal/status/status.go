// Package status resolves and writes the lifecycle status of plans and their
// conversations.
//
// Three namespaces hold status: a per-conversation override, the plan status
// (with a completed flag), and a task status for free-form conversations.
// Writer keeps them in agreement; Resolver still reads them in precedence
// order so rows written by older builds resolve the same way.
package status

import (
	"context"
	"fmt"
	"strconv"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
	"github.com/julianstephens/planmate/internal/records"
)

func overrideKey(convID int64) string {
	return "conversation_" + strconv.FormatInt(convID, 10) + "_status"
}

func taskKey(convID int64) string {
	return "conversation_" + strconv.FormatInt(convID, 10)
}

func planPrefix(planID int64) string {
	return "plan_" + strconv.FormatInt(planID, 10) + "_"
}

// ConversationLookup finds a conversation by id.
type ConversationLookup interface {
	Get(ctx context.Context, id int64) (models.Conversation, bool, error)
}

// Resolver computes effective status.
type Resolver struct {
	store prefs.Store
	convs ConversationLookup
}

func NewResolver(store prefs.Store, convs ConversationLookup) *Resolver {
	return &Resolver{store: store, convs: convs}
}

func (r *Resolver) lookup(ctx context.Context, ns, key string) (models.Status, bool, error) {
	v, ok, err := r.store.Get(ctx, ns, key)
	if err != nil || !ok {
		return models.StatusNotStarted, false, err
	}
	st, _ := models.ParseStatus(v)
	return st, true, nil
}

// Effective returns the conversation's status. The first source that holds a
// value wins: override, plan completed flag, plan status, task status.
// Unknown stored values read as not_started.
func (r *Resolver) Effective(ctx context.Context, conversationID int64) (models.Status, error) {
	if st, ok, err := r.lookup(ctx, constants.NamespaceConvStatus, overrideKey(conversationID)); err != nil {
		return models.StatusNotStarted, fmt.Errorf("failed to read conversation status: %w", err)
	} else if ok {
		return st, nil
	}

	planID := constants.FreeFormPlanID
	conv, found, err := r.convs.Get(ctx, conversationID)
	if err != nil {
		return models.StatusNotStarted, err
	}
	if found {
		planID = conv.PlanID
	}
	if planID >= 0 {
		return r.PlanStatus(ctx, planID)
	}

	st, _, err := r.lookup(ctx, constants.NamespaceConvTaskStatus, taskKey(conversationID))
	if err != nil {
		return models.StatusNotStarted, fmt.Errorf("failed to read task status: %w", err)
	}
	return st, nil
}

// ForPlan resolves a plan's status before its conversation exists. The
// conversation shares the plan's id.
func (r *Resolver) ForPlan(ctx context.Context, planID int64) (models.Status, error) {
	if st, ok, err := r.lookup(ctx, constants.NamespaceConvStatus, overrideKey(planID)); err != nil {
		return models.StatusNotStarted, fmt.Errorf("failed to read conversation status: %w", err)
	} else if ok {
		return st, nil
	}
	return r.PlanStatus(ctx, planID)
}

// PlanStatus reads the plan status namespace alone.
func (r *Resolver) PlanStatus(ctx context.Context, planID int64) (models.Status, error) {
	data, err := r.store.All(ctx, constants.NamespacePlanStatus)
	if err != nil {
		return models.StatusNotStarted, fmt.Errorf("failed to read plan status: %w", err)
	}
	snap := prefs.NewSnapshot(constants.NamespacePlanStatus, data)
	if snap.Bool(planPrefix(planID)+"completed", false) {
		return models.StatusCompleted, nil
	}
	st, _ := models.ParseStatus(snap.String(planPrefix(planID)+"status", string(models.StatusNotStarted)))
	return st, nil
}

// PlanCompleter commits a batch together with a plan's completion flag.
type PlanCompleter interface {
	CommitWithCompleted(ctx context.Context, planID int64, completed bool, ed *prefs.Editor) error
}

// Writer is the only code path that stores status.
type Writer struct {
	store prefs.Store
	plans PlanCompleter
}

func NewWriter(store prefs.Store, plans PlanCompleter) *Writer {
	return &Writer{store: store, plans: plans}
}

// Set writes st to every status namespace and, for a linked plan, to the plan
// record's completion flag, in one commit. Pass a negative planID for a
// free-form conversation.
func (w *Writer) Set(ctx context.Context, convID, planID int64, st models.Status) error {
	if _, ok := models.ParseStatus(string(st)); !ok {
		return fmt.Errorf("invalid status %q", st)
	}
	ed := prefs.Edit(w.store).
		PutString(constants.NamespaceConvStatus, overrideKey(convID), string(st)).
		PutString(constants.NamespaceConvTaskStatus, taskKey(convID), string(st))
	if planID < 0 {
		return ed.Commit(ctx)
	}
	completed := st == models.StatusCompleted
	ed.PutString(constants.NamespacePlanStatus, planPrefix(planID)+"status", string(st)).
		PutBool(constants.NamespacePlanStatus, planPrefix(planID)+"completed", completed)
	return w.plans.CommitWithCompleted(ctx, planID, completed, ed)
}

// QueueClear adds removal of every status key for the plan and conversation to ed.
func (w *Writer) QueueClear(ed *prefs.Editor, planID, convID int64) {
	ed.Remove(constants.NamespaceConvStatus, overrideKey(convID)).
		Remove(constants.NamespaceConvTaskStatus, taskKey(convID))
	if planID >= 0 {
		ed.RemovePrefix(constants.NamespacePlanStatus, planPrefix(planID))
	}
}

// ClearPlan removes the plan's status keys and those of its conversation.
func (w *Writer) ClearPlan(ctx context.Context, planID int64) error {
	ed := prefs.Edit(w.store)
	w.QueueClear(ed, planID, planID)
	return ed.Commit(ctx)
}

var (
	_ records.StatusCleaner = (*Writer)(nil)
	_ records.StatusSource  = (*Resolver)(nil)
	_ PlanCompleter         = (*records.Plans)(nil)
	_ ConversationLookup    = (*records.Conversations)(nil)
)
