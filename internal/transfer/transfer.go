// Package transfer exports and imports plans, conversations and settings as YAML.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/models"
	"github.com/julianstephens/planmate/internal/prefs"
	"github.com/julianstephens/planmate/internal/records"
	"github.com/julianstephens/planmate/internal/settings"
)

// FormatVersion is written to every export and checked on import.
const FormatVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported export version")

// stateNamespaces are carried verbatim alongside the editable settings.
var stateNamespaces = []string{
	constants.NamespacePlanStatus,
	constants.NamespaceConvTaskStatus,
	constants.NamespaceConvStatus,
	constants.NamespaceNotificationTracker,
}

// Document is the on-disk export format.
type Document struct {
	Version       int                          `yaml:"version"`
	ExportedAt    time.Time                    `yaml:"exported_at"`
	Plans         []models.Plan                `yaml:"plans"`
	Conversations []models.Conversation        `yaml:"conversations"`
	Settings      map[string]map[string]string `yaml:"settings,omitempty"`
	State         map[string]map[string]string `yaml:"state,omitempty"`
}

func isSecret(key string) bool {
	return key == constants.SettingAPIKey || strings.HasSuffix(key, "_"+constants.SettingAPIKey)
}

// Export collects everything except secrets.
func Export(ctx context.Context, svc *records.Service) (*Document, error) {
	plans, err := svc.Plans.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}
	convs, err := svc.Conversations.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	doc := &Document{
		Version:       FormatVersion,
		ExportedAt:    svc.Clock.Now(),
		Plans:         plans,
		Conversations: convs,
		Settings:      map[string]map[string]string{},
		State:         map[string]map[string]string{},
	}
	collect := func(dst map[string]map[string]string, namespaces []string) error {
		for _, ns := range namespaces {
			all, err := svc.Store.All(ctx, ns)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", ns, err)
			}
			for k := range all {
				if isSecret(k) {
					delete(all, k)
				}
			}
			if len(all) > 0 {
				dst[ns] = all
			}
		}
		return nil
	}
	if err := collect(doc.Settings, settings.Namespaces()); err != nil {
		return nil, err
	}
	if err := collect(doc.State, stateNamespaces); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write encodes doc as YAML.
func Write(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return enc.Close()
}

// Read decodes and checks an export.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	return &doc, nil
}

// Summary reports what an import wrote.
type Summary struct {
	Plans         int
	Conversations int
	Settings      int
	Skipped       []string
}

// Import replaces all plans, conversations and state with doc's contents and
// merges its settings over the current ones, in one commit. Settings that
// fail validation are skipped and listed in the summary.
func Import(ctx context.Context, svc *records.Service, doc *Document) (Summary, error) {
	sum := Summary{Plans: len(doc.Plans), Conversations: len(doc.Conversations)}

	for _, c := range doc.Conversations {
		if c.PlanID < 0 {
			continue
		}
		if !hasPlan(doc.Plans, c.PlanID) {
			return sum, fmt.Errorf("conversation %d links to missing plan %d", c.ID, c.PlanID)
		}
		// A plan's conversation shares the plan's id.
		if c.ID != c.PlanID {
			return sum, fmt.Errorf("conversation %d links to plan %d but must use id %d", c.ID, c.PlanID, c.PlanID)
		}
	}

	type write struct{ ns, key, value string }
	var writes []write
	for _, ns := range sortedKeys(doc.Settings) {
		for _, key := range sortedKeys(doc.Settings[ns]) {
			value := doc.Settings[ns][key]
			if err := settings.Validate(ns, key, value); err != nil {
				sum.Skipped = append(sum.Skipped, fmt.Sprintf("%s.%s: %v", ns, key, err))
				continue
			}
			writes = append(writes, write{ns, key, value})
		}
	}
	for ns := range doc.State {
		if !slices.Contains(stateNamespaces, ns) {
			sum.Skipped = append(sum.Skipped, fmt.Sprintf("%s: unknown namespace", ns))
		}
	}
	sum.Settings = len(writes)

	err := svc.ReplaceAll(ctx, doc.Plans, doc.Conversations, func(ed *prefs.Editor) {
		for _, ns := range stateNamespaces {
			ed.RemovePrefix(ns, "")
			ed.PutMap(ns, doc.State[ns])
		}
		for _, w := range writes {
			ed.PutString(w.ns, w.key, w.value)
		}
	})
	if err != nil {
		return sum, fmt.Errorf("failed to import: %w", err)
	}
	for _, s := range sum.Skipped {
		logger.Warn("Skipped imported setting", "detail", s)
	}
	logger.Info("Imported data", "plans", sum.Plans, "conversations", sum.Conversations, "settings", sum.Settings)
	return sum, nil
}

func hasPlan(plans []models.Plan, id int64) bool {
	for _, p := range plans {
		if int64(p.ID) == id {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
