// Package assistant holds the AI endpoint subcommands.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/planmate/internal/ai"
	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/keyring"
	"github.com/julianstephens/planmate/internal/models"
)

const requestTimeout = 30 * time.Second

func client(ctx *cli.Context, convID int64) (*ai.Client, models.AISettings, error) {
	s, err := ctx.Services().Settings.AI(context.Background(), convID)
	if err != nil {
		return nil, s, err
	}
	c, genErr := ai.ForSettings(s)
	if genErr != nil {
		return nil, s, genErr
	}
	return c, s, nil
}

// AIModelsCmd lists the models the configured endpoint offers.
type AIModelsCmd struct{}

func (c *AIModelsCmd) Run(ctx *cli.Context) error {
	cl, s, err := client(ctx, -1)
	if err != nil {
		return err
	}
	bg, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	list, err := cl.ListModels(bg)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(list) == 0 {
		ctx.Println("The endpoint offers no models")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, m := range list {
		mark := ""
		if m.ID == s.ModelName {
			mark = "✓"
		}
		rows = append(rows, []string{m.ID, mark})
	}
	ctx.Println(cli.Table([]string{"Model", "Selected"}, rows))
	return nil
}

// AITestCmd sends one prompt with the resolved settings and prints the reply.
type AITestCmd struct {
	Conversation int64  `help:"Use this conversation's AI overrides." default:"-1"`
	Prompt       string `arg:"" optional:"" help:"Prompt to send." default:"Say hello in one short sentence."`
}

func (c *AITestCmd) Run(ctx *cli.Context) error {
	cl, s, err := client(ctx, c.Conversation)
	if err != nil {
		return err
	}
	bg, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	start := time.Now()
	reply, err := cl.Complete(bg, ai.NewRequest(s, s.SystemPrompt, c.Prompt))
	if err != nil {
		var genErr *ai.GenerationError
		if errors.As(err, &genErr) {
			return fmt.Errorf("%s request failed: %s", genErr.Category, genErr.Message)
		}
		return err
	}
	ctx.Printf("%s %s\n", cli.MutedStyle.Render(fmt.Sprintf("[%s, %s]", s.ModelName, time.Since(start).Round(time.Millisecond))), reply)
	return nil
}

// AISetKeyCmd stores the API key in the OS keyring, or for one conversation
// in its AI overrides.
type AISetKeyCmd struct {
	Key          string `arg:"" help:"API key."`
	Conversation int64  `help:"Store the key for this conversation only." default:"-1"`
}

func (c *AISetKeyCmd) Run(ctx *cli.Context) error {
	key := strings.TrimSpace(c.Key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}
	if c.Conversation >= 0 {
		if err := ctx.Services().Settings.SetConversationKey(context.Background(), c.Conversation, key); err != nil {
			return err
		}
		ctx.Printf("✓ API key stored for conversation %d\n", c.Conversation)
		return nil
	}
	if err := keyring.Set(keyring.AIAPIKey, key); err != nil {
		return err
	}
	ctx.Println("✓ API key stored in OS keyring")
	return nil
}

// AIDeleteKeyCmd removes the API key from the OS keyring, or a conversation's key.
type AIDeleteKeyCmd struct {
	Conversation int64 `help:"Remove this conversation's key only." default:"-1"`
}

func (c *AIDeleteKeyCmd) Run(ctx *cli.Context) error {
	if c.Conversation >= 0 {
		if err := ctx.Services().Settings.SetConversationKey(context.Background(), c.Conversation, ""); err != nil {
			return err
		}
		ctx.Printf("✓ API key removed for conversation %d\n", c.Conversation)
		return nil
	}
	if err := keyring.Delete(keyring.AIAPIKey); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no API key found in keyring")
		}
		return err
	}
	ctx.Println("✓ API key deleted from OS keyring")
	return nil
}

// AIKeyStatusCmd reports where the API key comes from without printing it.
type AIKeyStatusCmd struct {
	Conversation int64 `help:"Report the key used by this conversation." default:"-1"`
}

func (c *AIKeyStatusCmd) Run(ctx *cli.Context) error {
	src := ctx.Services().Settings.APIKeySource(context.Background(), c.Conversation)
	ctx.Printf("API key source: %s\n", src)
	return nil
}
