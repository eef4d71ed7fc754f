// Package observability provides constructed loggers and process metrics.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger command handlers write user-facing output through.
// It defaults to a console encoder at info level; Init replaces it with a
// logger built from configuration.
var CLILogger = mustConsoleLogger(zapcore.InfoLevel)

// Init builds the process loggers from configuration. profile selects the
// encoder: "structured" emits JSON for machine consumption, anything else a
// human-readable console format.
func Init(level string, profile string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	var logger *zap.Logger
	if profile == "structured" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		logger, err = cfg.Build()
	} else {
		logger = mustConsoleLogger(lvl)
	}
	if err != nil {
		return err
	}

	CLILogger = logger
	return nil
}

// NewComponentLogger returns a named logger for long-lived components such
// as the executor loop and the HTTP server.
func NewComponentLogger(component string) *zap.Logger {
	return CLILogger.Named(component)
}

func mustConsoleLogger(lvl zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		// Development config only fails on invalid output paths, which
		// the defaults never produce.
		panic(err)
	}
	return logger
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	_ = CLILogger.Sync()
}
