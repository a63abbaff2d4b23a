// Package logging builds zerolog loggers from configuration and keeps
// per-namespace minimum levels for named child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// FieldLogger is the field carrying a child logger's namespace.
const FieldLogger = "logger"

// Config contains logging configuration.
type Config struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	NoColor   bool   `mapstructure:"no_color"`
	Timestamp bool   `mapstructure:"timestamp"`
}

// ApplyDefaults applies default values to logging configuration.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = zerolog.LevelInfoValue
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
}

// Validate validates logging configuration.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	validFormats := []string{FormatConsole, FormatJSON}
	if !slices.Contains(validFormats, c.Format) {
		return fmt.Errorf("logging.format must be one of %v (got: %s)", validFormats, c.Format)
	}
	return nil
}

// ParseLevel parses a level name. Unlike zerolog.ParseLevel it rejects the
// empty string.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.NoLevel, fmt.Errorf("empty level")
	}
	return zerolog.ParseLevel(strings.ToLower(s))
}

// New creates a logger writing to w, or to stderr when w is nil.
// An unknown level falls back to info.
func New(cfg Config, w io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()
	if w == nil {
		w = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(cfg.Format) == FormatConsole {
		out = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.TimeOnly}
	}

	zc := zerolog.New(out).Level(level).With()
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	return zc.Logger()
}

// Levels maps dotted namespaces to minimum levels. A level set for
// "parflow" also applies to "parflow.compute" unless a longer namespace
// overrides it. The zero value is not usable; use NewLevels.
type Levels struct {
	mu     sync.RWMutex
	levels map[string]zerolog.Level
}

// NewLevels creates an empty namespace table.
func NewLevels() *Levels {
	return &Levels{levels: make(map[string]zerolog.Level)}
}

// Set sets the minimum level for namespace and everything below it.
func (l *Levels) Set(namespace string, level zerolog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[namespace] = level
}

// Level resolves the minimum level for name by longest matching namespace.
func (l *Levels) Level(name string) (zerolog.Level, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for ns := name; ; {
		if lvl, ok := l.levels[ns]; ok {
			return lvl, true
		}
		i := strings.LastIndexByte(ns, '.')
		if i < 0 {
			return zerolog.NoLevel, false
		}
		ns = ns[:i]
	}
}

// Named returns a child of base tagged with name. Its level is the one
// resolved for name, or base's own level when no namespace matches.
func (l *Levels) Named(base zerolog.Logger, name string) zerolog.Logger {
	child := base.With().Str(FieldLogger, name).Logger()
	if lvl, ok := l.Level(name); ok {
		child = child.Level(lvl)
	}
	return child
}
