// Package log provides the process-wide structured logger.
package log

import (
	"sync"
)

// Logger is the logging facade used throughout strix.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

// Config controls the global logger.
type Config struct {
	// Level is the minimum severity: debug, info, warn or error.
	Level string `mapstructure:"level"`

	// Format selects the output encoding: text or json.
	Format string `mapstructure:"format"`

	// File optionally adds a rotating file output alongside stdout.
	File FileConfig `mapstructure:"file"`
}

// FileConfig configures the rotating file output.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns an info-level text logger on stdout.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

var (
	mu     sync.RWMutex
	logger Logger = mustBuild(DefaultConfig())
)

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// GetLogger returns the global logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func mustBuild(cfg Config) Logger {
	l, err := build(cfg)
	if err != nil {
		panic(err)
	}
	return l
}
