// Package logger provides the process-wide structured logger and the
// rotating pipeline event log.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config defines logger initialization options. Level accepts
// debug/info/warn/error. Environment "prod" or "production" selects the JSON
// handler, anything else the text handler. PipelineLogPath, when non-empty,
// mirrors all events into a size-rotated file.
type Config struct {
	Level           string
	Environment     string
	WithSource      bool
	PipelineLogPath string
}

var (
	global *slog.Logger
	once   sync.Once
)

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// New creates a logger from cfg without touching the global instance.
func New(cfg Config) (*slog.Logger, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := io.Writer(os.Stdout)
	if cfg.PipelineLogPath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.PipelineLogPath,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource}
	var handler slog.Handler
	env := strings.ToLower(cfg.Environment)
	if env == "prod" || env == "production" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler), nil
}

// Init initializes the global logger. Repeated calls return the logger
// created on the first call.
func Init(cfg Config) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		global, initErr = New(cfg)
	})
	return global, initErr
}

// L returns the initialized global logger and panics if Init has not run.
func L() *slog.Logger {
	if global == nil {
		panic("logger.Init must be called before logger.L")
	}
	return global
}

// LogStage records a structured log entry for one pipeline stage event.
// stage: dialogue_check/preprocess/transcribe/diarize/assemble/analyze/features/persist/cleanup
// action: start/success/skipped/error
func LogStage(logger *slog.Logger, runID, stage, action string, durationMs int64, errorCode string) {
	attrs := []slog.Attr{
		slog.String("run_id", runID),
		slog.String("stage", stage),
		slog.String("action", action),
		slog.Int64("duration_ms", durationMs),
	}

	if errorCode != "" {
		attrs = append(attrs, slog.String("error_code", errorCode))
		logger.LogAttrs(nil, slog.LevelError, "pipeline stage error", attrs...)
	} else {
		logger.LogAttrs(nil, slog.LevelInfo, "pipeline stage event", attrs...)
	}
}
