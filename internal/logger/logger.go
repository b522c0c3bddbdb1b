// Package logger provides the daemon-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Log is the global logger. Until Init replaces it, it discards everything.
var Log *slog.Logger

func init() {
	// Safe default so packages that log before Init (e.g. during flag
	// parsing) never dereference a nil logger.
	Log = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Init sets up the global logger. When enabled is false, Log discards
// everything — this backs the RSRPC_LOGS_ENABLED environment switch (§6)
// without scattering nil-checks across every call site.
func Init(enabled bool, level string, logFile string) error {
	if !enabled {
		Log = slog.New(slog.NewTextHandler(io.Discard, nil))
		slog.SetDefault(Log)
		return nil
	}

	// Parse log level
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// Set up multi-writer (stdout + file)
	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	multiWriter := io.MultiWriter(writers...)

	// Create handler with custom options
	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten time format
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)

	return nil
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
