package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// LogConfig selects the zap logger level and encoding
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

func (l LogConfig) zapLevel() (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(l.Level))); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func (l LogConfig) validate() error {
	if _, err := l.zapLevel(); err != nil {
		return err
	}
	switch strings.ToLower(l.Format) {
	case FormatConsole, FormatJSON:
		return nil
	default:
		return fmt.Errorf("log.format: unknown format %q", l.Format)
	}
}

// Build creates the zap logger described by the section
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := l.zapLevel()
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if strings.ToLower(l.Format) == FormatJSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
