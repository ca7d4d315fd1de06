package constants

import "time"

const (
	AppName           = "planmate"
	DefaultConfigPath = "~/.config/planmate/planmate.db"
	Version           = "v0.1.0"

	// Keyring accounts under the AppName service
	KeyringUserDatabase = "database-connection"
	KeyringUserAIKey    = "ai-api-key"

	// Environment overrides
	EnvConfig      = "PLANMATE_CONFIG"
	EnvDebug       = "PLANMATE_DEBUG"
	EnvAddr        = "PLANMATE_ADDR"
	EnvAIAPIKey    = "PLANMATE_AI_API_KEY"
	EnvDBConnStr   = "PLANMATE_DB_CONNECTION"
	DefaultAPIAddr = "127.0.0.1:7433"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "planmate-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifierLockfileName   = "planmate-notifier.lock"
	NotificationDurationMs = 5000
	NotificationIDBase     = 2000
	TrayAppIdentifier      = "com.julianstephens.planmate"
	TrayExecutablePrefix   = "planmate-tray"

	// Scheduler tags
	TagPeriodicCheck         = "periodic_plan_check"
	TagPeriodicCheckPlanPfx  = "periodic_plan_check_"
	TagConversationNotifyPfx = "conversation_notification_"
	StartupJitterMin         = 1 * time.Second
	StartupJitterMax         = 5 * time.Second
	CheckConcurrency         = 4
	SettingsPollInterval     = 30 * time.Second

	// AI client
	AIRequestTimeout = DefaultRequestTimeout * time.Second

	// FreeFormPlanID marks a conversation without a linked plan
	FreeFormPlanID int64 = -1
)
