package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/planmate/internal/constants"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

func stubProcess(t *testing.T, executable string) {
	t.Helper()
	old := findProcessFunc
	t.Cleanup(func() { findProcessFunc = old })
	findProcessFunc = func(pid int) (ps.Process, error) {
		if executable == "" {
			return nil, nil
		}
		return &mockProcess{pid: pid, executable: executable}, nil
	}
}

func stubConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := userConfigDirFunc
	t.Cleanup(func() { userConfigDirFunc = old })
	userConfigDirFunc = func() (string, error) { return dir, nil }
	return dir
}

func TestGetTrayAppConfigDir(t *testing.T) {
	base := stubConfigDir(t)
	trayDir := filepath.Join(base, constants.TrayAppIdentifier)

	dir, err := GetTrayAppConfigDir()
	if err != nil || dir != trayDir {
		t.Fatalf("default dir = %s, %v; want %s", dir, err, trayDir)
	}

	if err := os.MkdirAll(trayDir, 0755); err != nil {
		t.Fatal(err)
	}
	custom := filepath.Join(base, "elsewhere")
	settings := `{"settings": {"lockfile_dir": "` + custom + `"}}`
	if err := os.WriteFile(filepath.Join(trayDir, "settings.json"), []byte(settings), 0644); err != nil {
		t.Fatal(err)
	}
	dir, err = GetTrayAppConfigDir()
	if err != nil || dir != custom {
		t.Fatalf("custom dir = %s, %v; want %s", dir, err, custom)
	}
}

func TestFindAndValidateTrayProcess(t *testing.T) {
	lockfile := filepath.Join(t.TempDir(), constants.NotifierLockfileName)

	tests := []struct {
		name       string
		content    string
		executable string
		wantErr    string
	}{
		{"two-part lockfile", "8080|12345", "planmate-tray", "malformed"},
		{"garbage", "invalid", "planmate-tray", "malformed"},
		{"empty secret", "8080|12345|", "planmate-tray", "secret"},
		{"empty port", "|12345|s3cret", "planmate-tray", "port"},
		{"port out of range", "99999|12345|s3cret", "planmate-tray", "range"},
		{"bad pid", "8080|abc|s3cret", "planmate-tray", "process ID"},
		{"process gone", "8080|12345|s3cret", "", "not running"},
		{"wrong executable", "8080|12345|s3cret", "other-app", "is not planmate-tray"},
		{"valid", "8080|12345|s3cret\n", "planmate-tray-x86_64", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(lockfile, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			stubProcess(t, tt.executable)

			port, secret, err := findAndValidateTrayProcess(lockfile)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if port != "8080" || secret != "s3cret" {
				t.Errorf("got port=%s secret=%s", port, secret)
			}
		})
	}

	_, _, err := findAndValidateTrayProcess(filepath.Join(t.TempDir(), "missing.lock"))
	if !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("missing lockfile error = %v", err)
	}
}

func TestTrayNotify(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Planmate-Secret") != "s3cret" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.Text == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()
	port := srv.URL[strings.LastIndex(srv.URL, ":")+1:]

	base := stubConfigDir(t)
	trayDir := filepath.Join(base, constants.TrayAppIdentifier)
	if err := os.MkdirAll(trayDir, 0755); err != nil {
		t.Fatal(err)
	}
	lock := port + "|4242|s3cret"
	if err := os.WriteFile(filepath.Join(trayDir, constants.NotifierLockfileName), []byte(lock), 0600); err != nil {
		t.Fatal(err)
	}
	stubProcess(t, "planmate-tray")

	tray := NewTray()
	if err := tray.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	n := Notification{ConversationID: 7, Title: "Study", Text: "Time to focus", Sound: true}
	if err := tray.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.ID != 2007 || got.ConversationID != 7 || got.Title != "Study" || !got.Sound || got.Vibrate {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.DurationMs != constants.NotificationDurationMs {
		t.Errorf("duration = %d", got.DurationMs)
	}

	n.Text = "fail"
	if err := tray.Notify(context.Background(), n); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	if err := (DryRun{Out: &buf}).Notify(context.Background(), Notification{ConversationID: 3, Title: "Run", Text: "Go"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "[notify #2003] Run: Go\n" {
		t.Errorf("output = %q", got)
	}
}
