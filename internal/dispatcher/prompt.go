package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
)

// PlaceholderUserTurn is the single user turn sent with every generated prompt.
const PlaceholderUserTurn = "Generate the message based on the system prompt"

// StatusCue is the short status line placed in the prompt and in error text.
func StatusCue(st models.Status) string {
	switch st {
	case models.StatusNotStarted:
		return "The plan has not started yet, help the user get ready"
	case models.StatusWorking:
		return "The plan is in progress, help the user stay focused"
	}
	return "Plan status update"
}

// BuildPrompt assembles the system prompt for one generation.
func BuildPrompt(persona string, history []models.Message, now time.Time, st models.Status, plan models.Plan) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))
	b.WriteString("\nStay in character.\n")
	if len(history) > 0 {
		b.WriteString("\nEarlier messages from the user, for context:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "User: %s\n", m.Text)
		}
	}
	fmt.Fprintf(&b, "\nCurrent time: %s\n", now.Format(constants.TimeFormat))
	fmt.Fprintf(&b, "Current day: %s\n", now.Weekday())
	fmt.Fprintf(&b, "Conversation status: %s\n", StatusCue(st))
	b.WriteString("Help the user complete this plan:\n")
	fmt.Fprintf(&b, "- Title: %s\n", plan.Title)
	fmt.Fprintf(&b, "- Description: %s\n", plan.Description)
	fmt.Fprintf(&b, "- Time: %s", plan.Window())
	return b.String()
}

// ErrorText is the transcript text for a failed generation.
func ErrorText(st models.Status, err error) string {
	return fmt.Sprintf("[%s] %s", StatusCue(st), err.Error())
}

// ReplyErrorText is the transcript text for a failed reply to the user.
func ReplyErrorText(err error) string {
	return "Error: " + err.Error()
}
