package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction. Level falls back to the LOG_LEVEL
// environment variable when empty.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json (default) or console
}

// NewLogger creates a Zap logger for production use.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	zcfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zcfg.Encoding = "console"
	}
	zcfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zcfg.Build()
}

// NewDevelopmentLogger creates a logger suitable for development and tests.
func NewDevelopmentLogger() (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zcfg.Build()
}

// ParseLevel maps a level string to a zapcore.Level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
