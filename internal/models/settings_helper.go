package models

import (
	"strconv"

	"github.com/julianstephens/planmate/internal/constants"
)

// DefaultPlannerSettings returns planner settings with every field at its default.
func DefaultPlannerSettings() PlannerSettings {
	return PlannerSettings{
		NotificationsEnabled:  constants.DefaultNotificationsEnabled,
		PeriodicCheckInterval: constants.DefaultPeriodicCheckInterval,
		NotStartedInterval:    constants.DefaultNotStartedInterval,
		NotificationSound:     constants.DefaultNotificationSound,
		NotificationVibration: constants.DefaultNotificationVibration,
		Timezone:              constants.DefaultTimezone,
		PerPlanChecks:         constants.DefaultPerPlanChecks,
	}
}

// DefaultAISettings returns the global AI defaults. The API key is never defaulted.
func DefaultAISettings() AISettings {
	return AISettings{
		BaseURL:            constants.DefaultBaseURL,
		ModelName:          constants.DefaultModelName,
		SystemPrompt:       constants.DefaultSystemPrompt,
		Temperature:        constants.DefaultTemperature,
		MaxTokens:          constants.DefaultMaxTokens,
		ConversationMemory: constants.DefaultConversationMemory,
		RequestTimeout:     constants.DefaultRequestTimeout,
	}
}

// DefaultChatSettings returns chat display defaults.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		BubbleFontSize: constants.DefaultChatBubbleFontSize,
		BackgroundURI:  constants.DefaultChatBackgroundURI,
	}
}

// MapToPlannerSettings converts stored key/value pairs to PlannerSettings.
// Missing or malformed values keep their defaults.
func MapToPlannerSettings(data map[string]string) PlannerSettings {
	s := DefaultPlannerSettings()
	for key, value := range data {
		switch key {
		case constants.SettingNotificationsEnabled:
			s.NotificationsEnabled = parseBool(value, s.NotificationsEnabled)
		case constants.SettingPeriodicCheckInterval:
			s.PeriodicCheckInterval = parseInt(value, s.PeriodicCheckInterval)
		case constants.SettingNotStartedInterval:
			s.NotStartedInterval = parseInt(value, s.NotStartedInterval)
		case constants.SettingNotificationSound:
			s.NotificationSound = parseBool(value, s.NotificationSound)
		case constants.SettingNotificationVibration:
			s.NotificationVibration = parseBool(value, s.NotificationVibration)
		case constants.SettingTimezone:
			if value != "" {
				s.Timezone = value
			}
		case constants.SettingPerPlanChecks:
			s.PerPlanChecks = parseBool(value, s.PerPlanChecks)
		}
	}
	s.PeriodicCheckInterval = ClampCheckInterval(s.PeriodicCheckInterval)
	if s.NotStartedInterval < 1 {
		s.NotStartedInterval = constants.DefaultNotStartedInterval
	}
	return s
}

// PlannerSettingsToMap converts PlannerSettings to key/value pairs.
func PlannerSettingsToMap(s PlannerSettings) map[string]string {
	return map[string]string{
		constants.SettingNotificationsEnabled:  strconv.FormatBool(s.NotificationsEnabled),
		constants.SettingPeriodicCheckInterval: strconv.Itoa(s.PeriodicCheckInterval),
		constants.SettingNotStartedInterval:    strconv.Itoa(s.NotStartedInterval),
		constants.SettingNotificationSound:     strconv.FormatBool(s.NotificationSound),
		constants.SettingNotificationVibration: strconv.FormatBool(s.NotificationVibration),
		constants.SettingTimezone:              s.Timezone,
		constants.SettingPerPlanChecks:         strconv.FormatBool(s.PerPlanChecks),
	}
}

// ClampCheckInterval keeps the periodic interval within the supported range.
func ClampCheckInterval(minutes int) int {
	if minutes < constants.MinPeriodicCheckInterval {
		return constants.MinPeriodicCheckInterval
	}
	if minutes > constants.MaxPeriodicCheckInterval {
		return constants.MaxPeriodicCheckInterval
	}
	return minutes
}

// ConversationKeyPrefix is the per-conversation override prefix in the AI namespace.
func ConversationKeyPrefix(conversationID int64) string {
	return "conversation_" + strconv.FormatInt(conversationID, 10) + "_"
}

// MapToAISettings resolves AI settings for a conversation. Keys carrying the
// conversation's prefix win over global keys, which win over defaults.
// A negative conversationID resolves the global settings only.
func MapToAISettings(data map[string]string, conversationID int64) AISettings {
	return mapAISettings(data, conversationID, DefaultAISettings())
}

// MapToChatAISettings is MapToAISettings for replies to user messages, where
// an unset max_tokens falls back to the larger chat default.
func MapToChatAISettings(data map[string]string, conversationID int64) AISettings {
	s := DefaultAISettings()
	s.MaxTokens = constants.DefaultChatMaxTokens
	return mapAISettings(data, conversationID, s)
}

func mapAISettings(data map[string]string, conversationID int64, s AISettings) AISettings {
	lookup := func(key string) (string, bool) {
		if conversationID >= 0 {
			if v, ok := data[ConversationKeyPrefix(conversationID)+key]; ok {
				return v, true
			}
		}
		v, ok := data[key]
		return v, ok
	}
	if v, ok := lookup(constants.SettingBaseURL); ok && v != "" {
		s.BaseURL = v
	}
	if v, ok := lookup(constants.SettingAPIKey); ok {
		s.APIKey = v
	}
	if v, ok := lookup(constants.SettingModelName); ok && v != "" {
		s.ModelName = v
	}
	if v, ok := lookup(constants.SettingSystemPrompt); ok && v != "" {
		s.SystemPrompt = v
	}
	if v, ok := lookup(constants.SettingTemperature); ok {
		s.Temperature = parseFloat(v, s.Temperature)
	}
	if v, ok := lookup(constants.SettingMaxTokens); ok {
		s.MaxTokens = parseInt(v, s.MaxTokens)
	}
	if v, ok := lookup(constants.SettingConversationMemory); ok {
		s.ConversationMemory = parseInt(v, s.ConversationMemory)
	}
	if v, ok := lookup(constants.SettingRequestTimeout); ok {
		if n := parseInt(v, s.RequestTimeout); n > 0 {
			s.RequestTimeout = n
		}
	}
	return s
}

// AISettingsToMap converts AI settings to key/value pairs, prefixed for a
// conversation when conversationID is non-negative. The API key is omitted.
func AISettingsToMap(s AISettings, conversationID int64) map[string]string {
	prefix := ""
	if conversationID >= 0 {
		prefix = ConversationKeyPrefix(conversationID)
	}
	return map[string]string{
		prefix + constants.SettingBaseURL:            s.BaseURL,
		prefix + constants.SettingModelName:          s.ModelName,
		prefix + constants.SettingSystemPrompt:       s.SystemPrompt,
		prefix + constants.SettingTemperature:        strconv.FormatFloat(s.Temperature, 'f', -1, 64),
		prefix + constants.SettingMaxTokens:          strconv.Itoa(s.MaxTokens),
		prefix + constants.SettingConversationMemory: strconv.Itoa(s.ConversationMemory),
		prefix + constants.SettingRequestTimeout:     strconv.Itoa(s.RequestTimeout),
	}
}

// MapToChatSettings converts stored key/value pairs to ChatSettings.
func MapToChatSettings(data map[string]string) ChatSettings {
	s := DefaultChatSettings()
	if v, ok := data[constants.SettingChatBubbleFontSize]; ok {
		s.BubbleFontSize = parseFloat(v, s.BubbleFontSize)
	}
	if v, ok := data[constants.SettingChatBackgroundURI]; ok {
		s.BackgroundURI = v
	}
	return s
}

// ChatSettingsToMap converts ChatSettings to key/value pairs.
func ChatSettingsToMap(s ChatSettings) map[string]string {
	return map[string]string{
		constants.SettingChatBubbleFontSize: strconv.FormatFloat(s.BubbleFontSize, 'f', -1, 64),
		constants.SettingChatBackgroundURI:  s.BackgroundURI,
	}
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(v string, def float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
