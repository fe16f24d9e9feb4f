package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DevEnv switches to the human-readable development encoder when set to "1".
const DevEnv = "REPORT_IXI_DEV"

// Logger is a zap logger plus the level it was built with, so the level can be
// changed at runtime.
type Logger struct {
	*zap.Logger
	Level zap.AtomicLevel
}

func toZapLevel(level string) (zap.AtomicLevel, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		zapLevel = zapcore.DebugLevel
	case "", "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return zap.AtomicLevel{}, fmt.Errorf("unrecognized log level: %s", level)
	}
	return zap.NewAtomicLevelAt(zapLevel), nil
}

// New builds a logger at level. Production JSON output is the default.
func New(level string) (*Logger, error) {
	atomicLevel, err := toZapLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	if os.Getenv(DevEnv) == "1" {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = atomicLevel

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{Logger: logger, Level: atomicLevel}, nil
}
