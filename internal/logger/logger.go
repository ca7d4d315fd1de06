package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/planmate/internal/constants"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger

	discard = log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
)

// Config holds logger configuration
type Config struct {
	Debug     bool
	ConfigDir string
	// Foreground also mirrors info-level output to stderr, used by the daemon.
	Foreground bool
}

// Init initializes the global logger. It returns the rotating file writer so
// long-running processes can close it on shutdown.
func Init(cfg Config) (io.Closer, error) {
	logDir := filepath.Join(cfg.ConfigDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, constants.AppName+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	level := log.WarnLevel
	switch {
	case cfg.Debug:
		level = log.DebugLevel
	case cfg.Foreground:
		level = log.InfoLevel
	}

	var writer io.Writer = fileWriter
	if cfg.Debug || cfg.Foreground {
		writer = io.MultiWriter(os.Stderr, fileWriter)
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})

	return fileWriter, nil
}

// Component returns a child logger tagged with the component name.
// Safe to call before Init; the result discards everything until then.
func Component(name string) *log.Logger {
	if Logger == nil {
		return discard
	}
	return Logger.With("component", name)
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
