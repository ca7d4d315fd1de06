// Package notifier raises desktop notifications through the tray companion's
// local webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/planmate/internal/constants"
)

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess

	// ErrTrayNotRunning means no live tray process owns the lockfile.
	ErrTrayNotRunning = errors.New(constants.TrayExecutablePrefix + " is not running")
)

// Notification is a single reminder for a conversation.
type Notification struct {
	ConversationID int64
	Title          string
	Text           string
	Sound          bool
	Vibrate        bool
}

// ID is the stable notification identifier for the conversation, so a newer
// reminder replaces the older one.
func (n Notification) ID() int64 {
	return constants.NotificationIDBase + n.ConversationID
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WebhookPayload is the body posted to the tray app.
type WebhookPayload struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Text           string `json:"text"`
	ConversationID int64  `json:"conversation_id"`
	DurationMs     uint32 `json:"duration_ms"`
	Sound          bool   `json:"sound"`
	Vibrate        bool   `json:"vibrate"`
}

// Tray posts notifications to the running tray app.
type Tray struct {
	client *http.Client
}

func NewTray() *Tray {
	return &Tray{client: &http.Client{Timeout: 5 * time.Second}}
}

// Ping reports whether a live tray process owns the lockfile.
func (t *Tray) Ping() error {
	_, _, err := t.locate()
	return err
}

func (t *Tray) locate() (port, secret string, err error) {
	dir, err := GetTrayAppConfigDir()
	if err != nil {
		return "", "", err
	}
	return findAndValidateTrayProcess(filepath.Join(dir, constants.NotifierLockfileName))
}

func (t *Tray) Notify(ctx context.Context, n Notification) error {
	port, secret, err := t.locate()
	if err != nil {
		return err
	}
	return t.send(ctx, port, secret, WebhookPayload{
		ID:             n.ID(),
		Title:          n.Title,
		Text:           n.Text,
		ConversationID: n.ConversationID,
		DurationMs:     constants.NotificationDurationMs,
		Sound:          n.Sound,
		Vibrate:        n.Vibrate,
	})
}

// GetTrayAppConfigDir returns the tray app's config directory, honouring a
// custom lockfile_dir in its settings.json.
func GetTrayAppConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	trayConfigDir := filepath.Join(configDir, constants.TrayAppIdentifier)

	data, err := os.ReadFile(filepath.Join(trayConfigDir, "settings.json"))
	if err != nil {
		return trayConfigDir, nil
	}
	var store struct {
		Settings struct {
			LockfileDir string `json:"lockfile_dir"`
		} `json:"settings"`
	}
	if json.Unmarshal(data, &store) == nil && store.Settings.LockfileDir != "" {
		return store.Settings.LockfileDir, nil
	}
	return trayConfigDir, nil
}

// findAndValidateTrayProcess parses a "port|pid|secret" lockfile and checks
// the pid belongs to the tray executable.
func findAndValidateTrayProcess(lockfilePath string) (string, string, error) {
	content, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", "", ErrTrayNotRunning
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}
	port, pidField, secret := strings.TrimSpace(parts[0]), parts[1], strings.TrimSpace(parts[2])

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return "", "", fmt.Errorf("invalid port %q in lockfile", port)
	}
	if portNum < 1 || portNum > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
	}
	pid, err := strconv.Atoi(pidField)
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	if secret == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return "", "", ErrTrayNotRunning
	}
	if !strings.HasPrefix(process.Executable(), constants.TrayExecutablePrefix) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.TrayExecutablePrefix, process.Executable())
	}
	return port, secret, nil
}

func (t *Tray) send(ctx context.Context, port, secret string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://127.0.0.1:"+port, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Planmate-Secret", secret)

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
}

// DryRun prints notifications instead of delivering them.
type DryRun struct {
	Out io.Writer
}

func (d DryRun) Notify(_ context.Context, n Notification) error {
	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "[notify #%d] %s: %s\n", n.ID(), n.Title, n.Text)
	return err
}
