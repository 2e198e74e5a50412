package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmsocial/mmclient/internal/cli/connection"
	"github.com/mmsocial/mmclient/internal/infra/confloader"
)

// EnvPrefix is the prefix of environment overrides, e.g. MM_API_BASE_URL.
const EnvPrefix = "MM_"

// HomeDir returns ~/.mm.
func HomeDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".mm")
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), "cli.yaml")
}

// DefaultStorageDir returns the default session database directory.
func DefaultStorageDir() string {
	return filepath.Join(HomeDir(), "session")
}

// DefaultKeyFile returns the default token encryption key path.
func DefaultKeyFile() string {
	return filepath.Join(HomeDir(), "session.key")
}

// Load reads the configuration at path (default when empty) and applies
// MM_* environment variables and then flags on top. A missing file is
// not an error. flags are keyed by dotted config path.
func Load(path string, flags map[string]any) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	loader := confloader.NewLoader(
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithConfigFile(path),
		confloader.WithOptionalFile(),
		confloader.WithDefaults(defaultMap()),
	)

	cfg := &CLIConfig{}
	if err := loader.Load(cfg, flags); err != nil {
		return nil, err
	}

	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	cfg.Storage.KeyFile = expandHome(cfg.Storage.KeyFile)
	cfg.API.CAFile = expandHome(cfg.API.CAFile)

	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML with owner-only permissions. The file is
// replaced atomically.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cli-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Timeout returns api.timeout as a duration. Verify guarantees it parses.
func (c *CLIConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PresenceURL returns presence.ws_url, or the address derived from
// api.base_url when unset.
func (c *CLIConfig) PresenceURL() (string, error) {
	if c.Presence.WSURL != "" {
		return c.Presence.WSURL, nil
	}
	return connection.WebSocketBase(c.API.BaseURL)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}
