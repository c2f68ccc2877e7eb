package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config represents logging configuration.
type Config struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File, when set, receives a copy of every record.
	File    string            `toml:"file"`
	Modules map[string]string `toml:"modules"`
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// state is the process-wide logging setup. Loggers handed out before
// Initialize keep their pointer; Initialize refreshes their level and sinks.
type state struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	global      slog.LevelVar
	modules     map[string]*moduleLogger
	file        io.WriteCloser
}

var std = newState()

func newState() *state {
	return &state{modules: make(map[string]*moduleLogger)}
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	std.initialize(config)
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	return std.get(module)
}

func (s *state) initialize(config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if config.File != "" {
		f, err := openLogFile(config.File)
		if err != nil {
			slog.Warn("Failed to open log file", "path", config.File, "error", err)
		} else {
			s.file = f
		}
	}

	s.config = config
	s.initialized = true
	s.global.Set(levelOr(config.Level, slog.LevelInfo))

	for name, m := range s.modules {
		m.level.Set(s.moduleLevel(name))
		// Loggers are handed out by pointer, so swap the handler in place.
		*m.logger = *slog.New(s.handler(m.level)).With("module", name)
	}

	slog.SetDefault(slog.New(s.handler(&s.global)))
}

func (s *state) get(module string) *slog.Logger {
	s.mu.RLock()
	m, ok := s.modules[module]
	s.mu.RUnlock()
	if ok {
		return m.logger
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)
	if s.initialized {
		level.Set(s.moduleLevel(module))
	}

	m = &moduleLogger{
		logger: slog.New(s.handler(level)).With("module", module),
		level:  level,
	}
	s.modules[module] = m
	return m.logger
}

// moduleLevel resolves the effective level for a module. Caller holds mu.
func (s *state) moduleLevel(module string) slog.Level {
	global := levelOr(s.config.Level, slog.LevelInfo)
	if lvl, ok := s.config.Modules[module]; ok {
		return levelOr(lvl, global)
	}
	return global
}

// handler builds the sink chain: stdout, the log file and the systemd
// journal, whichever are available. Caller holds mu.
func (s *state) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	stdout := formatHandler(s.config.Format, os.Stdout, opts)

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if s.file != nil {
		handlers = append(handlers, formatHandler(s.config.Format, s.file, opts))
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return stdout
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

func formatHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// isStdoutAvailable reports whether stdout goes to a terminal, pipe, socket
// or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if parsed, ok := parseLevel(level); ok {
		return parsed
	}
	return fallback
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
