// Package convs holds the conversation subcommands.
package convs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/records"
)

func load(ctx *cli.Context, id int64) (models.Conversation, error) {
	conv, ok, err := ctx.Services().Records.Conversations.Get(context.Background(), id)
	if err != nil {
		return conv, err
	}
	if !ok {
		return conv, fmt.Errorf("conversation %d: %w", id, records.ErrNotFound)
	}
	return conv, nil
}

type ConvListCmd struct{}

func (c *ConvListCmd) Run(ctx *cli.Context) error {
	svc := ctx.Services()
	cats, err := svc.Records.Conversations.Categorize(context.Background(), svc.Resolver)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	groups := []struct {
		name  string
		convs []models.Conversation
	}{
		{"Working", cats.Working},
		{"Not started", cats.NotStarted},
		{"Completed", cats.Completed},
		{"Conversations", cats.Normal},
	}
	empty := true
	for _, g := range groups {
		if len(g.convs) == 0 {
			continue
		}
		empty = false
		ctx.Println(cli.HeaderStyle.Render(g.name))
		rows := make([][]string, 0, len(g.convs))
		for _, conv := range g.convs {
			plan := "-"
			if conv.HasPlan() {
				plan = strconv.FormatInt(conv.PlanID, 10)
			}
			last := "-"
			if m, ok := conv.LastAssistantMessage(); ok {
				last = preview(m.Text)
			}
			rows = append(rows, []string{
				strconv.FormatInt(conv.ID, 10),
				conv.Title,
				plan,
				strconv.Itoa(len(conv.Messages)),
				last,
				cli.FormatTime(conv.Timestamp),
			})
		}
		ctx.Println(cli.Table([]string{"ID", "Title", "Plan", "Messages", "Last reply", "Updated"}, rows))
	}
	if empty {
		ctx.Println("No conversations yet")
	}
	return nil
}

const previewLen = 40

// preview shortens text to one line of at most previewLen runes.
func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen-3]) + "..."
}

type ConvNewCmd struct {
	Title string `arg:"" help:"Conversation title."`
}

func (c *ConvNewCmd) Run(ctx *cli.Context) error {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	conv, err := ctx.Services().Records.Conversations.CreateFreeForm(context.Background(), title)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	ctx.Printf("Created conversation: %s (ID: %d)\n", conv.Title, conv.ID)
	return nil
}

type ConvShowCmd struct {
	ID int64 `arg:"" help:"Conversation ID."`
}

func (c *ConvShowCmd) Run(ctx *cli.Context) error {
	conv, err := load(ctx, c.ID)
	if err != nil {
		return err
	}
	svc := ctx.Services()
	bg := context.Background()
	st, err := svc.Resolver.Effective(bg, conv.ID)
	if err != nil {
		return err
	}
	ctx.Printf("%s  %s\n", cli.HeaderStyle.Render(conv.Title), cli.StatusLabel(st))
	if conv.HasPlan() {
		reminded, _, err := svc.Records.Tracker.LastNotification(bg, conv.PlanID)
		if err != nil {
			return err
		}
		replied, _, err := svc.Records.Tracker.LastUserMessage(bg, conv.PlanID)
		if err != nil {
			return err
		}
		ctx.Println(cli.MutedStyle.Render(fmt.Sprintf("last reminder %s, last reply %s",
			cli.FormatTime(reminded), cli.FormatTime(replied))))
	}
	if len(conv.Messages) == 0 {
		ctx.Println(cli.MutedStyle.Render("No messages"))
	}
	for _, m := range conv.Messages {
		who := cli.SuccessStyle.Render("assistant")
		if m.IsUser {
			who = cli.WarningStyle.Render("you")
		}
		ctx.Printf("%s %s: %s\n", cli.MutedStyle.Render(cli.FormatTime(m.Timestamp)), who, m.Text)
	}
	return svc.Records.Tracker.MarkOpened(bg, conv.ID, svc.Clock.Now())
}

type ConvSendCmd struct {
	ID    int64  `arg:"" help:"Conversation ID."`
	Text  string `arg:"" help:"Message text."`
	Reply bool   `help:"Wait for an assistant reply."`
}

func (c *ConvSendCmd) Run(ctx *cli.Context) error {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if _, err := load(ctx, c.ID); err != nil {
		return err
	}
	_, count, err := ctx.Services().Records.SendUserMessage(context.Background(), c.ID, text)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	ctx.Printf("Sent (%d message(s) in conversation)\n", count)
	if !c.Reply {
		return nil
	}
	out := ctx.Dispatcher(nil, nil, nil).Reply(context.Background(), c.ID)
	if out.StoreErr != nil {
		return fmt.Errorf("failed to store reply: %w", out.StoreErr)
	}
	who := cli.SuccessStyle.Render("assistant")
	if out.GenErr != nil {
		who = cli.DangerStyle.Render("assistant")
	}
	ctx.Printf("%s: %s\n", who, out.Message.Text)
	return nil
}

type ConvClearCmd struct {
	ID  int64 `arg:"" help:"Conversation ID."`
	Yes bool  `short:"y" help:"Skip the confirmation prompt."`
}

func (c *ConvClearCmd) Run(ctx *cli.Context) error {
	conv, err := load(ctx, c.ID)
	if err != nil {
		return err
	}
	ok, err := ctx.Ask(fmt.Sprintf("Clear all messages in %q?", conv.Title), c.Yes)
	if err != nil || !ok {
		return err
	}
	if err := ctx.Services().Records.ClearConversation(context.Background(), c.ID); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	ctx.Printf("Cleared conversation: %s\n", conv.Title)
	return nil
}

type ConvDeleteCmd struct {
	ID  int64 `arg:"" help:"Conversation ID."`
	Yes bool  `short:"y" help:"Skip the confirmation prompt."`
}

func (c *ConvDeleteCmd) Run(ctx *cli.Context) error {
	conv, err := load(ctx, c.ID)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("Delete %q?", conv.Title)
	if conv.HasPlan() {
		prompt = fmt.Sprintf("%q belongs to a plan and will be cleared instead. Continue?", conv.Title)
	}
	ok, err := ctx.Ask(prompt, c.Yes)
	if err != nil || !ok {
		return err
	}
	svc := ctx.Services()
	ctx.PerformAutomaticBackup()
	if err := svc.Records.DeleteConversation(context.Background(), c.ID, svc.Writer); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if conv.HasPlan() {
		ctx.Printf("Cleared conversation: %s\n", conv.Title)
	} else {
		ctx.Printf("Deleted conversation: %s\n", conv.Title)
	}
	return nil
}

type ConvStatusCmd struct {
	ID     int64  `arg:"" help:"Conversation ID."`
	Status string `arg:"" optional:"" help:"New status: not_started, working or completed."`
}

func (c *ConvStatusCmd) Run(ctx *cli.Context) error {
	conv, err := load(ctx, c.ID)
	if err != nil {
		return err
	}
	svc := ctx.Services()
	bg := context.Background()
	if c.Status == "" {
		st, err := svc.Resolver.Effective(bg, conv.ID)
		if err != nil {
			return err
		}
		ctx.Println(cli.StatusLabel(st))
		return nil
	}
	st, ok := models.ParseStatus(c.Status)
	if !ok {
		return fmt.Errorf("invalid status %q", c.Status)
	}
	if err := svc.Writer.Set(bg, conv.ID, conv.PlanID, st); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	ctx.Printf("%s is now %s\n", conv.Title, cli.StatusLabel(st))
	return nil
}
