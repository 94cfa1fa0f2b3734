// Package logging provides categorized file-based logging for forest.
// Logs are written to <data_dir>/logs/ with one file per category and day.
// Nothing is ever written to stdout: the tool protocol owns that stream.
// When debug mode is off only Warn/Error entries are emitted.
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

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and shutdown
	CategoryConfig     Category = "config"     // Configuration loading
	CategoryStore      Category = "store"      // KV store operations
	CategoryVector     Category = "vector"     // Vector index operations
	CategoryEmbedding  Category = "embedding"  // Embedding engine
	CategoryBridge     Category = "bridge"     // Intelligence bridge correlation
	CategoryHTA        Category = "hta"        // HTA engine and tree store
	CategoryOnboarding Category = "onboarding" // Gated onboarding stages
	CategoryTasks      Category = "tasks"      // Task selection and pipeline
	CategoryEvolution  Category = "evolution"  // Strategy evolution
	CategorySupervisor Category = "supervisor" // Background supervisor
	CategoryServer     Category = "server"     // Tool router and transport
	CategoryProject    Category = "project"    // Project management
)

var (
	mu        sync.RWMutex
	logsDir   string
	debugMode bool
	loggers   = map[Category]*zap.SugaredLogger{}
	nop       = zap.NewNop().Sugar()
)

// Initialize sets up the logging directory. Called once at startup with the
// resolved data directory. Safe to skip entirely; loggers then no-op.
func Initialize(dataDir string, debug bool) error {
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	mu.Lock()
	defer mu.Unlock()

	logsDir = filepath.Join(dataDir, "logs")
	debugMode = debug
	loggers = map[Category]*zap.SugaredLogger{}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// Get returns (or creates) the logger for a category. Returns a no-op
// logger before Initialize or when the log file cannot be opened.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	dir := logsDir
	mu.RUnlock()

	if dir == "" {
		return nop
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open log file %s: %v\n", logPath, err)
		loggers[category] = nop
		return nop
	}

	level := zapcore.WarnLevel
	if debugMode {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(file), level)
	l := zap.New(core).Sugar().Named(string(category))
	loggers[category] = l
	return l
}

// IsDebugMode reports whether verbose logging is enabled.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

// CloseAll flushes every open logger. Called on shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
	loggers = map[Category]*zap.SugaredLogger{}
	logsDir = ""
}

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation within a category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debugf("%s took %s", t.op, time.Since(t.start))
}
