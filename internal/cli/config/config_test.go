package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.Output != "table" {
		t.Errorf("Output = %q, want table", cfg.Output)
	}
	if !cfg.Storage.Encrypt {
		t.Error("Encrypt should default to true")
	}
	if !strings.HasSuffix(cfg.Storage.Dir, filepath.Join(".mm", "session")) {
		t.Errorf("Storage.Dir = %q", cfg.Storage.Dir)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !filepath.IsAbs(path) {
		t.Errorf("path %q should be absolute", path)
	}
	if want := filepath.Join(".mm", "cli.yaml"); !strings.HasSuffix(path, want) {
		t.Errorf("path = %q, should end with %q", path, want)
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL || cfg.Timeout() != 30*time.Second {
		t.Errorf("Load() = %+v", cfg.API)
	}
}

func TestLoad_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	content := `
api:
  base_url: "https://mm.example.com/api/v1"
  timeout: "5s"
storage:
  dir: "~/custom-session"
  encrypt: false
output: yaml
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MM_LOG_LEVEL", "debug")
	t.Setenv("MM_PRESENCE_WS_URL", "wss://presence.example.com")

	cfg, err := Load(path, map[string]any{"output": "json"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://mm.example.com/api/v1" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v", cfg.Timeout())
	}
	if cfg.Storage.Encrypt {
		t.Error("file should turn encryption off")
	}
	if strings.HasPrefix(cfg.Storage.Dir, "~") || !strings.HasSuffix(cfg.Storage.Dir, "custom-session") {
		t.Errorf("Storage.Dir = %q, want ~ expanded", cfg.Storage.Dir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, env should apply", cfg.Log.Level)
	}
	if cfg.Output != "json" {
		t.Errorf("Output = %q, flag should win", cfg.Output)
	}

	ws, err := cfg.PresenceURL()
	if err != nil || ws != "wss://presence.example.com" {
		t.Errorf("PresenceURL() = %q, %v", ws, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]any
	}{
		{"bad scheme", map[string]any{"api.base_url": "ftp://host"}},
		{"no host", map[string]any{"api.base_url": "http://"}},
		{"bad timeout", map[string]any{"api.timeout": "soon"}},
		{"zero timeout", map[string]any{"api.timeout": "0s"}},
		{"bad ws url", map[string]any{"presence.ws_url": "http://host"}},
		{"bad output", map[string]any{"output": "xml"}},
		{"bad level", map[string]any{"log.level": "trace"}},
		{"bad format", map[string]any{"log.format": "pretty"}},
		{"no dir", map[string]any{"storage.dir": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), tt.flags)
			if err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestPresenceURL_Derived(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8080/api/v1", "ws://127.0.0.1:8080"},
		{"https://mm.example.com/api/v1", "wss://mm.example.com"},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.API.BaseURL = tt.base
		got, err := cfg.PresenceURL()
		if err != nil || got != tt.want {
			t.Errorf("PresenceURL(%q) = %q, %v; want %q", tt.base, got, err, tt.want)
		}
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")

	cfg := Default()
	cfg.API.BaseURL = "http://10.0.0.5:8080/api/v1"
	cfg.Output = "yaml"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() after Save error = %v", err)
	}
	if loaded.API.BaseURL != cfg.API.BaseURL || loaded.Output != "yaml" {
		t.Errorf("loaded = %+v", loaded)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLoad_CAFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), map[string]any{"api.ca_file": "~/certs/ca.pem"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "certs", "ca.pem"); cfg.API.CAFile != want {
		t.Errorf("CAFile = %q, want %q", cfg.API.CAFile, want)
	}
	if got := cfg.Flatten()["api.ca_file"]; got != cfg.API.CAFile {
		t.Errorf("Flatten()[api.ca_file] = %v", got)
	}

	cfg, err = Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.CAFile != "" {
		t.Errorf("CAFile = %q, want empty by default", cfg.API.CAFile)
	}
}
