package records

import (
	"context"
	"fmt"
	"strconv"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
)

// StatusCleaner queues removal of a plan's stored status keys.
type StatusCleaner interface {
	QueueClear(ed *prefs.Editor, planID, convID int64)
}

// Service bundles the tables and the multi-table operations.
type Service struct {
	Store         prefs.Store
	Plans         *Plans
	Conversations *Conversations
	Tracker       *Tracker
	Clock         clock.Clock
}

func NewService(store prefs.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		Store:         store,
		Plans:         NewPlans(store),
		Conversations: NewConversations(store, clk),
		Tracker:       NewTracker(store),
		Clock:         clk,
	}
}

// DeletePlan removes the plan, then its conversation, then its status,
// tracker and last-generated keys.
func (s *Service) DeletePlan(ctx context.Context, id int64, statuses StatusCleaner) error {
	ok, err := s.Plans.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	if _, err := s.Conversations.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}

	ed := prefs.Edit(s.Store)
	if statuses != nil {
		statuses.QueueClear(ed, id, id)
	}
	s.Tracker.clear(ed, id, id)
	ed.Remove(constants.NamespaceConversations, lastGeneratedPrefix+strconv.FormatInt(id, 10))
	if err := ed.Commit(ctx); err != nil {
		return fmt.Errorf("failed to clear keys for plan %d: %w", id, err)
	}
	logger.Info("Deleted plan", "id", id)
	return nil
}

// DeleteConversation removes a conversation. A plan-linked conversation is
// cleared instead, since the plan would recreate it on the next check.
func (s *Service) DeleteConversation(ctx context.Context, id int64, statuses StatusCleaner) error {
	conv, ok, err := s.Conversations.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if conv.HasPlan() {
		return s.ClearConversation(ctx, id)
	}
	if _, err := s.Conversations.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	ed := prefs.Edit(s.Store)
	if statuses != nil {
		statuses.QueueClear(ed, constants.FreeFormPlanID, id)
	}
	ed.Remove(constants.NamespaceNotificationTracker, lastOpenedKey(id))
	return ed.Commit(ctx)
}

// ClearConversation empties the transcript. Tracker keys are kept.
func (s *Service) ClearConversation(ctx context.Context, id int64) error {
	if err := s.Conversations.ClearMessages(ctx, id); err != nil {
		return err
	}
	logger.Info("Cleared conversation", "id", id)
	return nil
}

// SendUserMessage appends a user message and records it against the linked plan.
func (s *Service) SendUserMessage(ctx context.Context, convID int64, text string) (models.Message, int, error) {
	msg, count, err := s.Conversations.AppendMessage(ctx, convID, models.Message{Text: text, IsUser: true})
	if err != nil {
		return msg, count, err
	}
	conv, ok, err := s.Conversations.Get(ctx, convID)
	if err == nil && ok && conv.HasPlan() {
		if err := s.Tracker.RecordUserMessage(ctx, conv.PlanID, msg.Timestamp); err != nil {
			logger.Warn("failed to record user message time", "plan", conv.PlanID, "error", err)
		}
	}
	return msg, count, nil
}

// ReplaceAll swaps every plan and conversation for the given sets. extra may
// queue further ops; everything lands in one commit.
func (s *Service) ReplaceAll(ctx context.Context, plans []models.Plan, convs []models.Conversation, extra func(ed *prefs.Editor)) error {
	for _, p := range plans {
		if err := ValidatePlan(p); err != nil {
			return fmt.Errorf("plan %d: %w", p.ID, err)
		}
	}
	s.Plans.mu.Lock()
	defer s.Plans.mu.Unlock()
	s.Conversations.mu.Lock()
	defer s.Conversations.mu.Unlock()

	ed := prefs.Edit(s.Store)
	if err := s.Plans.queueReplace(ctx, ed, plans); err != nil {
		return err
	}
	if err := s.Conversations.queueReplace(ctx, ed, convs); err != nil {
		return err
	}
	if extra != nil {
		extra(ed)
	}
	return ed.Commit(ctx)
}
