package logging

import (
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is satisfied by *slog.Logger. Packages store this instead of the
// concrete type so tests can swap it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config selects the global level, the stdout format and per-module
// level overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type module struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mu          sync.RWMutex
	modules     = make(map[string]*module)
	current     Config
	initialized bool
	globalLevel = &slog.LevelVar{}
	logBuffer   *RingBuffer
	logCallback LogCallback
)

// Initialize configures outputs and levels. Loggers handed out earlier are
// rebuilt so they pick up the new format and the log buffer.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	current = config
	initialized = true
	if logBuffer == nil {
		logBuffer = NewRingBuffer(defaultBufferSize)
	}

	globalLevel.Set(levelOr(config.Level, slog.LevelInfo))
	for name, m := range modules {
		m.level.Set(moduleLevel(config, name))
		m.logger = slog.New(createHandler(config.Format, m.level)).With("module", name)
	}
	slog.SetDefault(slog.New(createHandler(config.Format, globalLevel)))
}

// SetLevels applies new levels without touching outputs. It returns the
// modules whose level changed.
func SetLevels(config Config) []string {
	mu.Lock()
	defer mu.Unlock()

	current.Level = config.Level
	current.Modules = maps.Clone(config.Modules)
	globalLevel.Set(levelOr(config.Level, slog.LevelInfo))

	var changed []string
	for name, m := range modules {
		lvl := moduleLevel(current, name)
		if m.level.Level() != lvl {
			m.level.Set(lvl)
			changed = append(changed, name)
		}
	}
	return changed
}

// Levels returns the effective level of every module logger.
func Levels() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(modules))
	for name, m := range modules {
		out[name] = levelToString(m.level.Level())
	}
	return out
}

// GetBuffer returns the in-memory log history.
func GetBuffer() *RingBuffer {
	mu.RLock()
	defer mu.RUnlock()
	return logBuffer
}

// SetLogCallback sets a function called for every buffered entry. The API
// uses it to stream logs.
func SetLogCallback(callback LogCallback) {
	mu.Lock()
	defer mu.Unlock()
	logCallback = callback
}

func sink() (*RingBuffer, LogCallback) {
	mu.RLock()
	defer mu.RUnlock()
	return logBuffer, logCallback
}

// GetLogger returns the logger of a module, creating it on first use.
func GetLogger(name string) *slog.Logger {
	mu.RLock()
	m, ok := modules[name]
	mu.RUnlock()
	if ok {
		return m.logger
	}

	mu.Lock()
	defer mu.Unlock()
	if m, ok := modules[name]; ok {
		return m.logger
	}

	m = &module{level: &slog.LevelVar{}}
	format := "text"
	if initialized {
		m.level.Set(moduleLevel(current, name))
		format = current.Format
	}
	m.logger = slog.New(createHandler(format, m.level)).With("module", name)
	modules[name] = m
	return m.logger
}

func moduleLevel(config Config, name string) slog.Level {
	lvl := levelOr(config.Level, slog.LevelInfo)
	if s, ok := config.Modules[name]; ok {
		lvl = levelOr(s, lvl)
	}
	return lvl
}

// createHandler builds the output chain: stdout when attached, the
// journal when running under systemd and always the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable reports whether stdout goes somewhere other than
// /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts a level name. Unknown names return false.
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
		return 0, false
	}
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(level); ok {
		return l
	}
	return fallback
}
