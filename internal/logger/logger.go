package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the zap preset and encoder. Encoding is "json" or "console".
type Config struct {
	Level       string
	Encoding    string
	Development bool
}

// New builds a logger and installs it as the zap global so packages without an
// injected logger (seeding, CLI helpers) still log consistently.
func New(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(orDefault(cfg.Level, "info"))))
	if err != nil {
		return nil, err
	}
	zc.Level = level

	switch enc := strings.ToLower(strings.TrimSpace(cfg.Encoding)); enc {
	case "":
	case "json", "console":
		zc.Encoding = enc
	default:
		zc.Encoding = "json"
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

func orDefault(val string, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
