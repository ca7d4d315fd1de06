// Package settings loads and saves the planner, AI and chat settings kept in
// the preference store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/keyring"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
)

// KeySource names where an API key was found.
type KeySource string

const (
	KeySourceNone    KeySource = "none"
	KeySourceEnv     KeySource = "env"
	KeySourceKeyring KeySource = "keyring"
	KeySourcePrefs   KeySource = "prefs"
	// KeySourceConversation is a key stored for one conversation.
	KeySourceConversation KeySource = "conversation"
)

// Service reads and writes settings namespaces.
type Service struct {
	store prefs.Store
	// lookupEnv and keyringGet are swapped in tests.
	lookupEnv  func(string) string
	keyringGet func(keyring.Account) (string, error)
}

func New(store prefs.Store) *Service {
	return &Service{store: store, lookupEnv: os.Getenv, keyringGet: keyring.Get}
}

func (s *Service) Planner(ctx context.Context) (models.PlannerSettings, error) {
	data, err := s.store.All(ctx, constants.NamespacePlannerSettings)
	if err != nil {
		return models.DefaultPlannerSettings(), fmt.Errorf("failed to load planner settings: %w", err)
	}
	return models.MapToPlannerSettings(data), nil
}

func (s *Service) SavePlanner(ctx context.Context, ps models.PlannerSettings) error {
	ps.PeriodicCheckInterval = models.ClampCheckInterval(ps.PeriodicCheckInterval)
	if ps.Timezone == "" {
		ps.Timezone = constants.DefaultTimezone
	}
	return prefs.Edit(s.store).
		PutMap(constants.NamespacePlannerSettings, models.PlannerSettingsToMap(ps)).
		Commit(ctx)
}

// AI resolves the settings for a conversation (a negative id means global).
// A key stored for the conversation is used as is; otherwise the key comes
// from the environment, keyring or prefs.
func (s *Service) AI(ctx context.Context, conversationID int64) (models.AISettings, error) {
	return s.loadAI(ctx, conversationID, models.MapToAISettings)
}

// ChatAI resolves the settings used to reply to a user message.
func (s *Service) ChatAI(ctx context.Context, conversationID int64) (models.AISettings, error) {
	return s.loadAI(ctx, conversationID, models.MapToChatAISettings)
}

func (s *Service) loadAI(ctx context.Context, conversationID int64, mapFn func(map[string]string, int64) models.AISettings) (models.AISettings, error) {
	data, err := s.store.All(ctx, constants.NamespaceAISettings)
	if err != nil {
		return mapFn(nil, -1), fmt.Errorf("failed to load AI settings: %w", err)
	}
	ai := mapFn(data, conversationID)
	if conversationID >= 0 {
		if v := strings.TrimSpace(data[conversationKey(conversationID)]); v != "" {
			ai.APIKey = v
			return ai, nil
		}
	}
	ai.APIKey, _ = s.resolveKey(data[constants.SettingAPIKey])
	return ai, nil
}

func conversationKey(conversationID int64) string {
	return models.ConversationKeyPrefix(conversationID) + constants.SettingAPIKey
}

// SetConversationKey stores an API key used only by one conversation. An
// empty key removes it.
func (s *Service) SetConversationKey(ctx context.Context, conversationID int64, key string) error {
	if conversationID < 0 {
		return fmt.Errorf("invalid conversation id %d", conversationID)
	}
	ed := prefs.Edit(s.store)
	if key = strings.TrimSpace(key); key == "" {
		ed.Remove(constants.NamespaceAISettings, conversationKey(conversationID))
	} else {
		ed.PutString(constants.NamespaceAISettings, conversationKey(conversationID), key)
	}
	return ed.Commit(ctx)
}

// SaveAI stores global settings, or per-conversation overrides when
// conversationID is non-negative.
func (s *Service) SaveAI(ctx context.Context, ai models.AISettings, conversationID int64) error {
	return prefs.Edit(s.store).
		PutMap(constants.NamespaceAISettings, models.AISettingsToMap(ai, conversationID)).
		Commit(ctx)
}

// ClearAIOverrides removes every per-conversation AI key.
func (s *Service) ClearAIOverrides(ctx context.Context, conversationID int64) error {
	return prefs.Edit(s.store).
		RemovePrefix(constants.NamespaceAISettings, models.ConversationKeyPrefix(conversationID)).
		Commit(ctx)
}

func (s *Service) Chat(ctx context.Context) (models.ChatSettings, error) {
	data, err := s.store.All(ctx, constants.NamespaceChatSettings)
	if err != nil {
		return models.DefaultChatSettings(), fmt.Errorf("failed to load chat settings: %w", err)
	}
	return models.MapToChatSettings(data), nil
}

func (s *Service) SaveChat(ctx context.Context, cs models.ChatSettings) error {
	return prefs.Edit(s.store).
		PutMap(constants.NamespaceChatSettings, models.ChatSettingsToMap(cs)).
		Commit(ctx)
}

// SeedDefaults writes default values for every setting that is not yet stored.
// Existing values are left alone.
func (s *Service) SeedDefaults(ctx context.Context) error {
	ed := prefs.Edit(s.store)
	seed := func(ns string, defaults map[string]string) error {
		existing, err := s.store.All(ctx, ns)
		if err != nil {
			return err
		}
		for k, v := range defaults {
			if _, ok := existing[k]; !ok {
				ed.PutString(ns, k, v)
			}
		}
		return nil
	}
	if err := seed(constants.NamespacePlannerSettings, models.PlannerSettingsToMap(models.DefaultPlannerSettings())); err != nil {
		return fmt.Errorf("failed to seed planner settings: %w", err)
	}
	aiDefaults := models.AISettingsToMap(models.DefaultAISettings(), -1)
	// Generated messages and chat replies default max_tokens differently.
	delete(aiDefaults, constants.SettingMaxTokens)
	if err := seed(constants.NamespaceAISettings, aiDefaults); err != nil {
		return fmt.Errorf("failed to seed AI settings: %w", err)
	}
	if err := seed(constants.NamespaceChatSettings, models.ChatSettingsToMap(models.DefaultChatSettings())); err != nil {
		return fmt.Errorf("failed to seed chat settings: %w", err)
	}
	logger.Debug("seeding settings", "keys", ed.Len())
	return ed.Commit(ctx)
}

// APIKeySource reports where the API key for a conversation would come from.
// A negative id reports the global key.
func (s *Service) APIKeySource(ctx context.Context, conversationID int64) KeySource {
	if conversationID >= 0 {
		v, ok, err := s.store.Get(ctx, constants.NamespaceAISettings, conversationKey(conversationID))
		if err != nil {
			logger.Debug("conversation api key lookup failed", "error", err)
		}
		if ok && strings.TrimSpace(v) != "" {
			return KeySourceConversation
		}
	}
	stored, _, err := s.store.Get(ctx, constants.NamespaceAISettings, constants.SettingAPIKey)
	if err != nil {
		logger.Debug("api key pref lookup failed", "error", err)
	}
	_, src := s.resolveKey(stored)
	return src
}

func (s *Service) resolveKey(stored string) (string, KeySource) {
	if v := strings.TrimSpace(s.lookupEnv(constants.EnvAIAPIKey)); v != "" {
		return v, KeySourceEnv
	}
	v, err := s.keyringGet(keyring.AIAPIKey)
	switch {
	case err == nil && v != "":
		return v, KeySourceKeyring
	case err != nil && !errors.Is(err, keyring.ErrNotFound):
		logger.Debug("keyring unavailable for api key", "error", err)
	}
	if stored != "" {
		return stored, KeySourcePrefs
	}
	return "", KeySourceNone
}

// Get returns a single raw value.
func (s *Service) Get(ctx context.Context, ns, key string) (string, bool, error) {
	return s.store.Get(ctx, ns, key)
}

// Set writes a single raw value after validating the namespace and key.
func (s *Service) Set(ctx context.Context, ns, key, value string) error {
	if err := Validate(ns, key, value); err != nil {
		return err
	}
	return prefs.Edit(s.store).PutString(ns, key, value).Commit(ctx)
}
