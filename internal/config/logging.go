package config

import "chessmaster/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"CHESSMASTER_LOG_LEVEL"`
	// json or text
	Format string `yaml:"format"`
	// Master toggle: false means no file logs at all.
	DebugMode bool `yaml:"debug_mode" env:"CHESSMASTER_DEBUG"`
	// Per-category toggles; unlisted categories are enabled.
	Categories map[string]bool `yaml:"categories"`
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Settings converts the section into the logging package's settings.
func (c LoggingConfig) Settings() logging.Settings {
	return logging.Settings{
		DebugMode:  c.DebugMode,
		Categories: c.Categories,
		Level:      c.Level,
		JSONFormat: c.Format == "json",
	}
}
