package models

import "time"

// Message is a single transcript entry. Messages are appended and never edited.
type Message struct {
	ID        int64     `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	IsUser    bool      `json:"is_user" yaml:"is_user"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Conversation is a message thread, optionally bound to a plan.
// A plan's conversation reuses the plan id as its own id.
type Conversation struct {
	ID        int64     `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	PlanID    int64     `json:"plan_id" yaml:"plan_id"`
}

// HasPlan reports whether the conversation is linked to a plan.
func (c Conversation) HasPlan() bool {
	return c.PlanID >= 0
}

// LastAssistantMessage returns the newest non-user message.
func (c Conversation) LastAssistantMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if !c.Messages[i].IsUser {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// RecentUserMessages returns up to n of the newest user-authored messages, oldest first.
func (c Conversation) RecentUserMessages(n int) []Message {
	if n <= 0 {
		return nil
	}
	var out []Message
	for i := len(c.Messages) - 1; i >= 0 && len(out) < n; i-- {
		if c.Messages[i].IsUser {
			out = append(out, c.Messages[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
