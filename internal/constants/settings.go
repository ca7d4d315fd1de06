package constants

// Preference namespaces
const (
	NamespacePlans               = "plans"
	NamespaceConversations       = "conversations"
	NamespacePlanStatus          = "plan_status"
	NamespaceConvTaskStatus      = "conversation_task_status"
	NamespaceConvStatus          = "conversation_status"
	NamespacePlannerSettings     = "planner_settings"
	NamespaceAISettings          = "ai_settings"
	NamespaceChatSettings        = "chat_settings"
	NamespaceNotificationTracker = "notification_tracker"
)

const (
	// Planner settings
	SettingNotificationsEnabled  = "notifications_enabled"
	SettingPeriodicCheckInterval = "periodic_check_interval"
	SettingNotStartedInterval    = "not_started_notification_interval"
	SettingNotificationSound     = "notification_sound"
	SettingNotificationVibration = "notification_vibration"
	SettingTimezone              = "timezone"
	SettingPerPlanChecks         = "per_plan_checks"

	// AI settings
	SettingBaseURL            = "base_url"
	SettingAPIKey             = "api_key"
	SettingModelName          = "model_name"
	SettingSystemPrompt       = "system_prompt"
	SettingTemperature        = "temperature"
	SettingMaxTokens          = "max_tokens"
	SettingConversationMemory = "conversation_memory"
	SettingRequestTimeout     = "request_timeout"

	// Chat settings
	SettingChatBubbleFontSize = "chat_bubble_font_size"
	SettingChatBackgroundURI  = "chat_background_uri"

	// Default values
	DefaultNotificationsEnabled  = true
	DefaultPeriodicCheckInterval = 5 // minutes
	MinPeriodicCheckInterval     = 1
	MaxPeriodicCheckInterval     = 60
	DefaultNotStartedInterval    = 5 // minutes
	DefaultNotificationSound     = true
	DefaultNotificationVibration = true
	DefaultTimezone              = "Local"
	DefaultPerPlanChecks         = false

	DefaultBaseURL            = "https://api.siliconflow.cn/v1"
	DefaultModelName          = "THUDM/glm-4-9b-chat"
	DefaultSystemPrompt       = "You are a helpful assistant that helps the user follow through on their plans."
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 512
	DefaultChatMaxTokens      = 2048 // replies to user messages
	DefaultConversationMemory = 5
	DefaultRequestTimeout     = 60 // seconds

	DefaultChatBubbleFontSize = 16.0
	DefaultChatBackgroundURI  = ""

	// Plan field defaults applied when a stored record is incomplete
	DefaultPlanStartTime = "09:00"
)
