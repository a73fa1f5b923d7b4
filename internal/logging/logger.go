// Package logging provides config-driven categorized file-based logging for gatecheck.
// Logs are written to <gate dir>/logs/ with separate files per category.
// File logging is controlled by logging.debug_mode in the gate config - when false,
// every category logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gatecheck/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config resolution
	CategoryMailbox   Category = "mailbox"   // Request/response slot I/O
	CategoryDetector  Category = "detector"  // Prompt rendering, submit, wait
	CategoryApproval  Category = "approval"  // Loopback approval server
	CategoryLedger    Category = "ledger"    // Response integration
	CategoryAlignment Category = "alignment" // Charter evaluation, alignment log
	CategoryProtocol  Category = "protocol"  // Guard/approve orchestration
)

// Logger wraps a zap sugared logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	cfg       config.LoggingConfig
	cfgMu     sync.RWMutex
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	// override replaces file cores when set (tests, embedding callers).
	override zapcore.Core

	nop = zap.NewNop().Sugar()
)

// Initialize sets up the logging directory and stores the config.
// Should be called once at startup. A disabled config is a silent no-op.
func Initialize(dir string, lc config.LoggingConfig) error {
	if dir == "" {
		return fmt.Errorf("logs directory required")
	}

	CloseAll()

	cfgMu.Lock()
	logsDir = dir
	cfg = lc
	level.SetLevel(parseLevel(lc.Level))
	cfgMu.Unlock()

	if !lc.DebugMode {
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== gatecheck logging initialized ===")
	boot.Info("Logs directory: %s", dir)
	boot.Info("Log level: %s", level.Level())

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

// UseCore routes every category through core instead of per-category files,
// regardless of debug mode. The returned func restores the previous state.
func UseCore(core zapcore.Core) func() {
	loggersMu.Lock()
	prev := override
	override = core
	loggersMu.Unlock()
	CloseAll()

	return func() {
		loggersMu.Lock()
		override = prev
		loggersMu.Unlock()
		CloseAll()
	}
}

// IsDebugMode returns whether file logging is enabled.
func IsDebugMode() bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	core := override
	loggersMu.RUnlock()

	if core == nil && (!IsCategoryEnabled(category) || logsDir == "") {
		return &Logger{category: category, sugar: nop}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if core != nil {
		l.sugar = zap.New(core).Named(string(category)).Sugar()
		loggers[category] = l
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category, sugar: nop}
	}

	l.file = file
	l.sugar = zap.New(zapcore.NewCore(encoder(), zapcore.AddSync(file), level)).
		Named(string(category)).
		Sugar()
	loggers[category] = l

	return l
}

func encoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfgMu.RLock()
	format := cfg.Format
	cfgMu.RUnlock()

	if format == "console" || format == "text" {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// CloseAll flushes and closes all open log files.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		_ = l.sugar.Sync()
		if l.file != nil {
			l.file.Close()
		}
		delete(loggers, cat)
	}
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
