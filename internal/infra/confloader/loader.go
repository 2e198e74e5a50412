package confloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "MM_"

// Loader merges defaults, a YAML file, the environment and overrides into
// a koanf-tagged struct.
type Loader struct {
	envPrefix    string
	filePath     string
	optionalFile bool
	defaults     map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file layer.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOptionalFile makes a missing config file equivalent to an empty one.
func WithOptionalFile() Option {
	return func(l *Loader) {
		l.optionalFile = true
	}
}

// WithDefaults sets the lowest layer, keyed by dotted path.
func WithDefaults(defaults map[string]any) Option {
	return func(l *Loader) {
		l.defaults = defaults
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds a fresh koanf instance from every layer and unmarshals it
// into target. Later layers win: defaults, file, environment, then
// overrides (command-line flags), keyed by dotted path.
func (l *Loader) Load(target any, overrides map[string]any) error {
	k := koanf.New(".")

	if len(l.defaults) > 0 {
		if err := k.Load(mapProvider(l.defaults), nil); err != nil {
			return fmt.Errorf("load defaults: %w", err)
		}
	}

	if err := l.loadFile(k); err != nil {
		return err
	}

	if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func (l *Loader) loadFile(k *koanf.Koanf) error {
	if l.filePath == "" {
		return nil
	}
	if _, err := os.Stat(l.filePath); err != nil {
		if l.optionalFile && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load config file: %w", err)
	}
	if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", l.filePath, err)
	}
	return nil
}

// envKey maps PREFIX_SECTION_KEY_PART to section.key_part:
// MM_PRESENCE_WS_URL sets presence.ws_url.
func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	return strings.Replace(s, "_", ".", 1)
}
