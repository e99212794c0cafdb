// Package logging provides config-driven categorized file logging for chessmaster.
// Logs are written to <data>/logs/ with one file per category per day.
// Nothing is written unless debug mode is enabled in the logging settings.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryConfig    Category = "config"    // Config loading and validation
	CategoryBuilder   Category = "builder"   // Lesson production loop
	CategoryFetcher   Category = "fetcher"   // Search and page fetches
	CategoryBrowser   Category = "browser"   // Headless rendering fallback
	CategoryCache     Category = "cache"     // Content cache and history
	CategoryQueue     Category = "queue"     // Lesson queue depth changes
	CategoryAssembler Category = "assembler" // Slide layout
	CategoryDriver    Category = "driver"    // Presentation state machine
	CategoryDisplay   Category = "display"   // Terminal rendering
	CategoryMetrics   Category = "metrics"   // Metrics endpoint
	CategorySession   Category = "session"   // Session statistics
)

// Settings mirrors config.LoggingConfig to keep this package free of imports
// from the rest of the module.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// Logger is a category-scoped printf-style logger backed by zap.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	loggers    = make(map[Category]*Logger)
	loggersMu  sync.RWMutex
	logsDir    string
	settings   Settings
	settingsMu sync.RWMutex
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	nop        = zap.NewNop().Sugar()
)

// Initialize sets up the logs directory under dataDir and applies settings.
// Call once at startup; calling again replaces the settings and closes
// previously opened files.
func Initialize(dataDir string, s Settings) error {
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	CloseAll()

	settingsMu.Lock()
	settings = s
	logsDir = filepath.Join(dataDir, "logs")
	level.SetLevel(parseLevel(s.Level))
	settingsMu.Unlock()

	if !s.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== chessmaster logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", level.Level())
	if len(s.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	} else {
		enabled := 0
		for cat, on := range s.Categories {
			if on {
				enabled++
			}
			boot.Debug("Category '%s': %v", cat, on)
		}
		boot.Info("Enabled categories: %d/%d", enabled, len(s.Categories))
	}
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether file logging is enabled at all.
func IsDebugMode() bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings.DebugMode
}

// IsCategoryEnabled returns whether a specific category writes anything.
// Unlisted categories are enabled when debug mode is on.
func IsCategoryEnabled(category Category) bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()

	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category.
// A disabled category gets a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: nop}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	settingsMu.RLock()
	dir, jsonFormat := logsDir, settings.JSONFormat
	settingsMu.RUnlock()
	if dir == "" {
		return &Logger{category: category, sugar: nop}
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category, sugar: nop}
	}

	core := zapcore.NewCore(newEncoder(jsonFormat), zapcore.AddSync(file), level)
	l := &Logger{
		category: category,
		file:     file,
		sugar:    zap.New(core).Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

func newEncoder(jsonFormat bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if jsonFormat {
		cfg.TimeKey = "ts"
		cfg.MessageKey = "msg"
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error.
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger that attaches the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...), file: l.file}
}

// Zap exposes the underlying sugared logger for callers that want
// structured key/value logging.
func (l *Logger) Zap() *zap.SugaredLogger { return l.sugar }

// CloseAll flushes and closes every open log file.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		_ = l.sugar.Sync()
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// No-ops when the category is disabled.
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Config logs to the config category
func Config(format string, args ...interface{}) { Get(CategoryConfig).Info(format, args...) }

// Builder logs to the builder category
func Builder(format string, args ...interface{}) { Get(CategoryBuilder).Info(format, args...) }

// BuilderDebug logs debug to the builder category
func BuilderDebug(format string, args ...interface{}) { Get(CategoryBuilder).Debug(format, args...) }

// BuilderWarn logs a warning to the builder category
func BuilderWarn(format string, args ...interface{}) { Get(CategoryBuilder).Warn(format, args...) }

// BuilderError logs an error to the builder category
func BuilderError(format string, args ...interface{}) { Get(CategoryBuilder).Error(format, args...) }

// Fetcher logs to the fetcher category
func Fetcher(format string, args ...interface{}) { Get(CategoryFetcher).Info(format, args...) }

// FetcherDebug logs debug to the fetcher category
func FetcherDebug(format string, args ...interface{}) { Get(CategoryFetcher).Debug(format, args...) }

// FetcherWarn logs a warning to the fetcher category
func FetcherWarn(format string, args ...interface{}) { Get(CategoryFetcher).Warn(format, args...) }

// Browser logs to the browser category
func Browser(format string, args ...interface{}) { Get(CategoryBrowser).Info(format, args...) }

// BrowserDebug logs debug to the browser category
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }

// BrowserWarn logs a warning to the browser category
func BrowserWarn(format string, args ...interface{}) { Get(CategoryBrowser).Warn(format, args...) }

// Cache logs to the cache category
func Cache(format string, args ...interface{}) { Get(CategoryCache).Info(format, args...) }

// CacheDebug logs debug to the cache category
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }

// CacheError logs an error to the cache category
func CacheError(format string, args ...interface{}) { Get(CategoryCache).Error(format, args...) }

// QueueDebug logs debug to the queue category
func QueueDebug(format string, args ...interface{}) { Get(CategoryQueue).Debug(format, args...) }

// AssemblerDebug logs debug to the assembler category
func AssemblerDebug(format string, args ...interface{}) {
	Get(CategoryAssembler).Debug(format, args...)
}

// Driver logs to the driver category
func Driver(format string, args ...interface{}) { Get(CategoryDriver).Info(format, args...) }

// DriverDebug logs debug to the driver category
func DriverDebug(format string, args ...interface{}) { Get(CategoryDriver).Debug(format, args...) }

// Display logs to the display category
func Display(format string, args ...interface{}) { Get(CategoryDisplay).Info(format, args...) }

// DisplayDebug logs debug to the display category
func DisplayDebug(format string, args ...interface{}) { Get(CategoryDisplay).Debug(format, args...) }

// Metrics logs to the metrics category
func Metrics(format string, args ...interface{}) { Get(CategoryMetrics).Info(format, args...) }

// Session logs to the session category
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
