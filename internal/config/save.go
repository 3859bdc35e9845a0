package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultFileComment heads the generated config file.
const defaultFileComment = `# kakhl configuration.
# theme: fallback theme when the editor does not name one.
# language_map: editor filetype -> engine language id.
# theme_map: editor colorscheme -> engine theme id.
`

// fileConfig mirrors Config with yaml tags for persistence. Durations are
// written in Go duration syntax ("50ms", "5s").
type fileConfig struct {
	Theme          string            `yaml:"theme"`
	LanguageMap    map[string]string `yaml:"language_map,omitempty"`
	ThemeMap       map[string]string `yaml:"theme_map,omitempty"`
	HighlighterMap map[string]string `yaml:"highlighter_map,omitempty"`
	MinInterval    string            `yaml:"min_interval"`
	GracePeriod    string            `yaml:"grace_period"`
	BaseDir        string            `yaml:"base_dir,omitempty"`
}

// WriteDefaultConfig writes the built-in defaults to path, creating parent
// directories as needed. Used on first run when no config file exists.
func WriteDefaultConfig(path string) error {
	defaults := Defaults()
	out := fileConfig{
		Theme:       defaults.Theme,
		MinInterval: defaults.MinInterval.String(),
		GracePeriod: defaults.GracePeriod.String(),
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshaling defaults: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	return os.WriteFile(path, append([]byte(defaultFileComment), data...), 0644)
}
