package models

// PlannerSettings controls the periodic check and notifications.
type PlannerSettings struct {
	NotificationsEnabled  bool   `json:"notifications_enabled" yaml:"notifications_enabled"`
	PeriodicCheckInterval int    `json:"periodic_check_interval" yaml:"periodic_check_interval"`                     // minutes
	NotStartedInterval    int    `json:"not_started_notification_interval" yaml:"not_started_notification_interval"` // minutes before the follow-up check
	NotificationSound     bool   `json:"notification_sound" yaml:"notification_sound"`
	NotificationVibration bool   `json:"notification_vibration" yaml:"notification_vibration"`
	Timezone              string `json:"timezone" yaml:"timezone"` // IANA name or "Local"
	PerPlanChecks         bool   `json:"per_plan_checks" yaml:"per_plan_checks"`
}

// AISettings is the chat-completion configuration, globally or for one conversation.
type AISettings struct {
	BaseURL            string  `json:"base_url" yaml:"base_url"`
	APIKey             string  `json:"-" yaml:"-"`
	ModelName          string  `json:"model_name" yaml:"model_name"`
	SystemPrompt       string  `json:"system_prompt" yaml:"system_prompt"`
	Temperature        float64 `json:"temperature" yaml:"temperature"`
	MaxTokens          int     `json:"max_tokens" yaml:"max_tokens"`
	ConversationMemory int     `json:"conversation_memory" yaml:"conversation_memory"`
	RequestTimeout     int     `json:"request_timeout" yaml:"request_timeout"` // seconds
}

// ChatSettings are display preferences for the transcript.
type ChatSettings struct {
	BubbleFontSize float64 `json:"chat_bubble_font_size" yaml:"chat_bubble_font_size"`
	BackgroundURI  string  `json:"chat_background_uri" yaml:"chat_background_uri"`
}
