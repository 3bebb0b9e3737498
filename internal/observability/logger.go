// Package observability wraps go.uber.org/zap into the logger shape
// the coordinator and worker CLIs share: JSON encoding for production
// ("STRUCTURED") profiles, human-readable console encoding otherwise.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger's verbosity and output shape; it mirrors
// internal/config.LoggingConfig field for field so callers can pass
// that struct straight through.
type Config struct {
	Level   string
	Profile string
}

// Logger is the process-wide structured logger, replaced by New once
// configuration has loaded; it starts as a no-op so package code that
// runs before configuration (flag parsing, early validation) never
// nil-derefs.
var Logger = zap.NewNop()

// New builds a *zap.Logger from cfg. Profile "STRUCTURED" selects JSON
// encoding suited to log aggregation; anything else selects a
// console encoder suited to a developer's terminal.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("observability: parse log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Profile == "STRUCTURED" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	return zap.New(core, zap.AddCaller()), nil
}

// CLILogger builds and installs the package-wide Logger from cfg,
// returning it for callers (the cobra RunE functions) that
// also want the value directly.
func CLILogger(cfg Config) (*zap.Logger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	Logger = logger
	return logger, nil
}
