// Package config provides configuration types, defaults, and persistence for kakhl.
package config

import (
	"sync"
	"time"
)

// DefaultTheme is used when the editor does not name a theme and the config
// file does not override it.
const DefaultTheme = "catppuccin-frappe"

// Config holds all configuration options for kakhl.
type Config struct {
	// Theme is the fallback theme id when a request carries an empty theme.
	Theme string `mapstructure:"theme"`

	// LanguageMap maps editor filetypes to engine language ids,
	// e.g. "zsh" -> "bash".
	LanguageMap map[string]string `mapstructure:"language_map"`

	// ThemeMap maps editor colorscheme names to engine theme ids.
	ThemeMap map[string]string `mapstructure:"theme_map"`

	// HighlighterMap overrides which highlighter the editor-side script
	// enables per filetype. Defaults to the filetype itself.
	HighlighterMap map[string]string `mapstructure:"highlighter_map"`

	// MinInterval is the per-buffer rate limit between dispatched highlights.
	MinInterval time.Duration `mapstructure:"min_interval"`

	// GracePeriod bounds how long shutdown waits for session loops to drain.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// BaseDir overrides the per-run temp directory holding the FIFOs.
	// Empty means a fresh directory under os.TempDir().
	BaseDir string `mapstructure:"base_dir"`

	// Tracing configures the optional trace exporter.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // "none", "file", "stdout", "otlp"
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Theme:          DefaultTheme,
		LanguageMap:    map[string]string{},
		ThemeMap:       map[string]string{},
		HighlighterMap: map[string]string{},
		MinInterval:    50 * time.Millisecond,
		GracePeriod:    5 * time.Second,
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "kakhl",
		},
	}
}

// ResolveLanguage maps an editor filetype to an engine language id.
func (c Config) ResolveLanguage(lang string) string {
	if mapped, ok := c.LanguageMap[lang]; ok {
		return mapped
	}
	return lang
}

// ResolveTheme maps an editor theme name to an engine theme id.
// An empty name resolves to the configured default.
func (c Config) ResolveTheme(theme string) string {
	if theme == "" {
		if c.Theme != "" {
			return c.Theme
		}
		return DefaultTheme
	}
	if mapped, ok := c.ThemeMap[theme]; ok {
		return mapped
	}
	return theme
}

// ResolveHighlighter returns the highlighter name the editor-side script
// should enable for a filetype.
func (c Config) ResolveHighlighter(lang string) string {
	if mapped, ok := c.HighlighterMap[lang]; ok {
		return mapped
	}
	return lang
}

// Store holds the live configuration. The watcher goroutine replaces the
// snapshot on config file changes while session loops read it concurrently.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a Store seeded with the given config.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Current returns the current configuration snapshot.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace swaps in a new configuration snapshot.
func (s *Store) Replace(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}
