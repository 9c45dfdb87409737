// Package logging builds the structured diagnostic logger. Human-facing
// output goes through internal/output instead.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the log sink and level.
type Options struct {
	// File is the JSON log path. Empty disables logging.
	File    string
	Level   string
	Verbose bool
}

// New builds a JSON production logger appending to opts.File. Any failure
// yields a no-op logger: logging never affects a decision.
func New(opts Options) *zap.Logger {
	if opts.File == "" {
		return zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return zap.NewNop()
	}

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{opts.File}
	config.ErrorOutputPaths = []string{opts.File}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Sampling = nil

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if l, err := zapcore.ParseLevel(opts.Level); err == nil {
			level = l
		}
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
