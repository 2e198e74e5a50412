package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.Commit == "" {
		t.Error("Commit should not be empty")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	orig := Version
	Version = "v9.9.9"
	defer func() { Version = orig }()

	s := String()
	if !strings.HasPrefix(s, "v9.9.9 (") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(s, runtime.Version()) {
		t.Errorf("String() should mention the Go version, got %q", s)
	}
}

func TestUserAgent(t *testing.T) {
	orig := Version
	Version = "v1.2.3"
	defer func() { Version = orig }()

	if got := UserAgent(); got != "mm-cli/v1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}
