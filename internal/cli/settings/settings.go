// Package settings holds the settings subcommands.
package settings

import (
	"context"
	"fmt"
	"slices"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
	appsettings "github.com/julianstephens/planmate/internal/settings"
)

func kvTable(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, m[k]})
	}
	return cli.Table([]string{"Key", "Value"}, rows)
}

// SettingsShowCmd prints every settings namespace. API keys are never shown.
type SettingsShowCmd struct {
	Conversation int64 `help:"Resolve AI settings for this conversation." default:"-1"`
}

func (c *SettingsShowCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	st := ctx.Services().Settings

	ps, err := st.Planner(bg)
	if err != nil {
		return err
	}
	ai, err := st.AI(bg, c.Conversation)
	if err != nil {
		return err
	}
	chat, err := st.Chat(bg)
	if err != nil {
		return err
	}

	ctx.Println(cli.HeaderStyle.Render(constants.NamespacePlannerSettings))
	ctx.Println(kvTable(models.PlannerSettingsToMap(ps)))
	title := constants.NamespaceAISettings
	if c.Conversation >= 0 {
		title = fmt.Sprintf("%s (conversation %d)", title, c.Conversation)
	}
	ctx.Println(cli.HeaderStyle.Render(title))
	aiMap := models.AISettingsToMap(ai, -1)
	aiMap[constants.SettingAPIKey] = "(" + string(st.APIKeySource(bg, c.Conversation)) + ")"
	ctx.Println(kvTable(aiMap))
	ctx.Println(cli.HeaderStyle.Render(constants.NamespaceChatSettings))
	ctx.Println(kvTable(models.ChatSettingsToMap(chat)))
	return nil
}

// SettingsSetCmd writes one raw key after validation.
type SettingsSetCmd struct {
	Namespace string `arg:"" help:"Settings namespace."`
	Key       string `arg:"" help:"Setting key."`
	Value     string `arg:"" help:"New value."`
}

func (c *SettingsSetCmd) Run(ctx *cli.Context) error {
	if !slices.Contains(appsettings.Namespaces(), c.Namespace) {
		return fmt.Errorf("unknown settings namespace %q (one of %v)", c.Namespace, appsettings.Namespaces())
	}
	if err := ctx.Services().Settings.Set(context.Background(), c.Namespace, c.Key, c.Value); err != nil {
		return err
	}
	ctx.Printf("%s.%s = %s\n", c.Namespace, c.Key, c.Value)
	return nil
}

// SettingsPlannerCmd edits the planner settings.
type SettingsPlannerCmd struct {
	Notifications *bool   `help:"Enable notifications."`
	Interval      *int    `help:"Periodic check interval in minutes."`
	NotStarted    *int    `name:"not-started-interval" help:"Minutes between reminders for a plan that has not started."`
	Sound         *bool   `help:"Play a sound with notifications."`
	Vibration     *bool   `help:"Vibrate with notifications."`
	Timezone      *string `help:"IANA timezone used for plan windows."`
	PerPlan       *bool   `name:"per-plan-checks" help:"Schedule one check per plan instead of a global check."`
}

func (c *SettingsPlannerCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	st := ctx.Services().Settings
	ps, err := st.Planner(bg)
	if err != nil {
		return err
	}
	if c.Notifications != nil {
		ps.NotificationsEnabled = *c.Notifications
	}
	if c.Interval != nil {
		if *c.Interval != models.ClampCheckInterval(*c.Interval) {
			return fmt.Errorf("interval must be between %d and %d minutes",
				constants.MinPeriodicCheckInterval, constants.MaxPeriodicCheckInterval)
		}
		ps.PeriodicCheckInterval = *c.Interval
	}
	if c.NotStarted != nil {
		if *c.NotStarted < 1 {
			return fmt.Errorf("not-started interval must be at least 1 minute")
		}
		ps.NotStartedInterval = *c.NotStarted
	}
	if c.Sound != nil {
		ps.NotificationSound = *c.Sound
	}
	if c.Vibration != nil {
		ps.NotificationVibration = *c.Vibration
	}
	if c.Timezone != nil {
		if _, err := clock.LoadLocation(*c.Timezone); err != nil {
			return err
		}
		ps.Timezone = *c.Timezone
	}
	if c.PerPlan != nil {
		ps.PerPlanChecks = *c.PerPlan
	}
	if err := st.SavePlanner(bg, ps); err != nil {
		return fmt.Errorf("failed to save planner settings: %w", err)
	}
	ctx.Println(cli.SuccessStyle.Render("✓ Planner settings saved"))
	return nil
}

// SettingsAICmd edits the global AI settings or one conversation's overrides.
type SettingsAICmd struct {
	Conversation int64    `help:"Write overrides for this conversation instead of the global settings." default:"-1"`
	BaseURL      *string  `name:"base-url" help:"OpenAI-compatible API base URL."`
	Model        *string  `help:"Model name."`
	SystemPrompt *string  `name:"system-prompt" help:"System prompt."`
	Temperature  *float64 `help:"Sampling temperature (0-2)."`
	MaxTokens    *int     `name:"max-tokens" help:"Maximum tokens per reply."`
	Memory       *int     `help:"Number of recent user messages sent as context."`
	Timeout      *int     `name:"request-timeout" help:"Seconds to wait for the AI endpoint."`
}

func (c *SettingsAICmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	st := ctx.Services().Settings
	ai, err := st.AI(bg, c.Conversation)
	if err != nil {
		return err
	}
	if c.BaseURL != nil {
		ai.BaseURL = *c.BaseURL
	}
	if c.Model != nil {
		ai.ModelName = *c.Model
	}
	if c.SystemPrompt != nil {
		ai.SystemPrompt = *c.SystemPrompt
	}
	if c.Temperature != nil {
		if *c.Temperature < 0 || *c.Temperature > 2 {
			return fmt.Errorf("temperature must be between 0 and 2")
		}
		ai.Temperature = *c.Temperature
	}
	if c.MaxTokens != nil {
		if *c.MaxTokens < 0 {
			return fmt.Errorf("max-tokens must not be negative")
		}
		ai.MaxTokens = *c.MaxTokens
	}
	if c.Memory != nil {
		if *c.Memory < 0 {
			return fmt.Errorf("memory must not be negative")
		}
		ai.ConversationMemory = *c.Memory
	}
	if c.Timeout != nil {
		if *c.Timeout < 1 {
			return fmt.Errorf("request-timeout must be at least 1 second")
		}
		ai.RequestTimeout = *c.Timeout
	}
	if err := st.SaveAI(bg, ai, c.Conversation); err != nil {
		return fmt.Errorf("failed to save AI settings: %w", err)
	}
	if c.Conversation >= 0 {
		ctx.Printf("✓ AI overrides saved for conversation %d\n", c.Conversation)
	} else {
		ctx.Println("✓ AI settings saved")
	}
	return nil
}

// SettingsResetAICmd drops one conversation's AI overrides.
type SettingsResetAICmd struct {
	Conversation int64 `arg:"" help:"Conversation ID."`
}

func (c *SettingsResetAICmd) Run(ctx *cli.Context) error {
	if err := ctx.Services().Settings.ClearAIOverrides(context.Background(), c.Conversation); err != nil {
		return err
	}
	ctx.Printf("✓ AI overrides cleared for conversation %d\n", c.Conversation)
	return nil
}

// SettingsChatCmd edits the transcript display settings.
type SettingsChatCmd struct {
	FontSize   *float64 `name:"font-size" help:"Message bubble font size."`
	Background *string  `help:"Background image URI. Empty clears it."`
}

func (c *SettingsChatCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	st := ctx.Services().Settings
	cs, err := st.Chat(bg)
	if err != nil {
		return err
	}
	if c.FontSize != nil {
		if *c.FontSize <= 0 {
			return fmt.Errorf("font-size must be positive")
		}
		cs.BubbleFontSize = *c.FontSize
	}
	if c.Background != nil {
		cs.BackgroundURI = *c.Background
	}
	if err := st.SaveChat(bg, cs); err != nil {
		return fmt.Errorf("failed to save chat settings: %w", err)
	}
	ctx.Println("✓ Chat settings saved")
	return nil
}
