package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/julianstephens/planmate/internal/clock"
	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
)

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
	kindFloat
)

var known = map[string]map[string]kind{
	constants.NamespacePlannerSettings: {
		constants.SettingNotificationsEnabled:  kindBool,
		constants.SettingPeriodicCheckInterval: kindInt,
		constants.SettingNotStartedInterval:    kindInt,
		constants.SettingNotificationSound:     kindBool,
		constants.SettingNotificationVibration: kindBool,
		constants.SettingTimezone:              kindString,
		constants.SettingPerPlanChecks:         kindBool,
	},
	constants.NamespaceAISettings: {
		constants.SettingBaseURL:            kindString,
		constants.SettingModelName:          kindString,
		constants.SettingSystemPrompt:       kindString,
		constants.SettingTemperature:        kindFloat,
		constants.SettingMaxTokens:          kindInt,
		constants.SettingConversationMemory: kindInt,
		constants.SettingRequestTimeout:     kindInt,
	},
	constants.NamespaceChatSettings: {
		constants.SettingChatBubbleFontSize: kindFloat,
		constants.SettingChatBackgroundURI:  kindString,
	},
}

// Namespaces lists the settings namespaces editable from the CLI.
func Namespaces() []string {
	return []string{
		constants.NamespacePlannerSettings,
		constants.NamespaceAISettings,
		constants.NamespaceChatSettings,
	}
}

// Validate checks a raw settings write. AI keys may carry a
// "conversation_<id>_" override prefix.
func Validate(ns, key, value string) error {
	keys, ok := known[ns]
	if !ok {
		return fmt.Errorf("unknown settings namespace: %s", ns)
	}
	base := key
	if ns == constants.NamespaceAISettings {
		base = stripConversationPrefix(key)
	}
	k, ok := keys[base]
	if !ok {
		return fmt.Errorf("unknown setting %s in %s", key, ns)
	}
	switch k {
	case kindBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		if base == constants.SettingPeriodicCheckInterval && n != models.ClampCheckInterval(n) {
			return fmt.Errorf("%s must be between %d and %d minutes", key,
				constants.MinPeriodicCheckInterval, constants.MaxPeriodicCheckInterval)
		}
		if n < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
		if base == constants.SettingRequestTimeout && n < 1 {
			return fmt.Errorf("%s must be at least 1 second", key)
		}
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", key)
		}
		if base == constants.SettingTemperature && (f < 0 || f > 2) {
			return fmt.Errorf("%s must be between 0 and 2", key)
		}
	}
	if base == constants.SettingTimezone {
		if _, err := clock.LoadLocation(value); err != nil {
			return err
		}
	}
	return nil
}

func stripConversationPrefix(key string) string {
	rest, ok := strings.CutPrefix(key, "conversation_")
	if !ok {
		return key
	}
	idx := strings.IndexByte(rest, '_')
	if idx <= 0 {
		return key
	}
	if _, err := strconv.ParseInt(rest[:idx], 10, 64); err != nil {
		return key
	}
	return rest[idx+1:]
}
