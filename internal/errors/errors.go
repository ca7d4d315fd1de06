package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/planmate/internal/logger"
)

// Hinted carries a follow-up suggestion printed under the error message.
type Hinted struct {
	Err  error
	Hint string
}

func (h *Hinted) Error() string { return h.Err.Error() }

func (h *Hinted) Unwrap() error { return h.Err }

// WithHint attaches a suggestion such as "run 'planmate init' first".
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &Hinted{Err: err, Hint: hint}
}

// Format formats an error message with a consistent "Error: " prefix,
// followed by the hint line when one is attached.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var h *Hinted
	if errors.As(err, &h) && h.Hint != "" {
		return fmt.Sprintf("Error: %v\n  hint: %s", err, h.Hint)
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err == nil {
		return
	}
	logger.Error("command failed", "error", err)
	fmt.Fprintln(os.Stderr, Format(err))
	os.Exit(1)
}
