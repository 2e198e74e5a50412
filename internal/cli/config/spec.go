package config

// Default configuration values.
const (
	DefaultBaseURL   = "http://127.0.0.1:8080/api/v1"
	DefaultTimeout   = "30s"
	DefaultOutput    = "table"
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// CLIConfig is the configuration for mm-cli.
type CLIConfig struct {
	API      APIConfig      `koanf:"api" json:"api" yaml:"api"`
	Presence PresenceConfig `koanf:"presence" json:"presence" yaml:"presence"`
	Storage  StorageConfig  `koanf:"storage" json:"storage" yaml:"storage"`
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`

	// Output is the default output format: table, json or yaml.
	Output string `koanf:"output" json:"output" yaml:"output"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string `koanf:"base_url" json:"base_url" yaml:"base_url"`
	Timeout string `koanf:"timeout" json:"timeout" yaml:"timeout"`

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `koanf:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

// PresenceConfig locates the presence server.
type PresenceConfig struct {
	// WSURL overrides the address derived from api.base_url.
	WSURL string `koanf:"ws_url" json:"ws_url,omitempty" yaml:"ws_url,omitempty"`
}

// StorageConfig controls where the session is persisted.
type StorageConfig struct {
	Dir     string `koanf:"dir" json:"dir" yaml:"dir"`
	Encrypt bool   `koanf:"encrypt" json:"encrypt" yaml:"encrypt"`
	KeyFile string `koanf:"key_file" json:"key_file" yaml:"key_file"`
}

// LogConfig controls diagnostic output on stderr.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Storage: StorageConfig{
			Dir:     DefaultStorageDir(),
			Encrypt: true,
			KeyFile: DefaultKeyFile(),
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Output: DefaultOutput,
	}
}

// defaultMap is Default flattened to koanf keys.
func defaultMap() map[string]any {
	return Default().Flatten()
}

// Flatten returns c keyed by dotted koanf path.
func (c *CLIConfig) Flatten() map[string]any {
	return map[string]any{
		"api.base_url":     c.API.BaseURL,
		"api.timeout":      c.API.Timeout,
		"api.ca_file":      c.API.CAFile,
		"presence.ws_url":  c.Presence.WSURL,
		"storage.dir":      c.Storage.Dir,
		"storage.encrypt":  c.Storage.Encrypt,
		"storage.key_file": c.Storage.KeyFile,
		"log.level":        c.Log.Level,
		"log.format":       c.Log.Format,
		"output":           c.Output,
	}
}
