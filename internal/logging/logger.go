package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex

	// sink is the output chain built by the latest Initialize. Module
	// loggers resolve it per record.
	sink atomic.Pointer[slog.Handler]
)

// allLevels lets the sink pass everything; module level vars do the gating.
var allLevels slog.Leveler = slog.Level(-8)

func init() {
	setSink(Config{Format: "text"})
}

func setSink(config Config) {
	h := createHandler(config, allLevels)
	sink.Store(&h)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Journal bool              `toml:"journal"`
	Modules map[string]string `toml:"modules"`

	// Output receives text or JSON records. Defaults to stderr so that
	// stdout stays free for progress output.
	Output io.Writer `toml:"-"`
}

// Initialize sets up the logging system. Loggers handed out earlier, including
// the slog default, switch to the new levels, format, output and journal
// setting.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevel, ok := parseLevel(config.Level)
	if !ok {
		globalLevel = slog.LevelInfo
	}
	globalLevelVar.Set(globalLevel)

	setSink(config)
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
	}

	slog.SetDefault(slog.New(&moduleHandler{level: globalLevelVar}))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevel(module))

	logger := slog.New(&moduleHandler{level: levelVar}).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	moduleLevelVars[module].Set(parsed)
	return true
}

// moduleLevel resolves the level for module (must hold lock).
func moduleLevel(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	if levelStr, exists := globalConfig.Modules[module]; exists {
		if parsed, ok := parseLevel(levelStr); ok {
			return parsed
		}
	}
	if parsed, ok := parseLevel(globalConfig.Level); ok {
		return parsed
	}
	return slog.LevelInfo
}

// moduleHandler gates records on a module's level and hands them to the
// current sink, replaying the attributes and groups added to it.
type moduleHandler struct {
	level slog.Leveler
	with  []func(slog.Handler) slog.Handler
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	out := *sink.Load()
	for _, fn := range h.with {
		out = fn(out)
	}
	return out.Handle(ctx, r)
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *moduleHandler) derive(fn func(slog.Handler) slog.Handler) *moduleHandler {
	with := make([]func(slog.Handler) slog.Handler, len(h.with), len(h.with)+1)
	copy(with, h.with)
	return &moduleHandler{level: h.level, with: append(with, fn)}
}

// createHandler builds the handler chain: text or JSON on the configured
// writer, plus the systemd journal when enabled and reachable.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	if config.Journal && IsJournalAvailable() {
		return NewMultiHandler(handler, NewJournalHandler(level))
	}
	return handler
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
