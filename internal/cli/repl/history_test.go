package repl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHistory_Add(t *testing.T) {
	h := NewHistory("")

	h.Add("command1")
	h.Add("command2")
	h.Add("command2")
	h.Add("command3")

	if got := h.Entries(); len(got) != 3 {
		t.Errorf("entries = %v, want 3 with the repeat collapsed", got)
	}
}

func TestHistory_Add_MaxSize(t *testing.T) {
	h := &History{
		entries: make([]string, 0),
		maxSize: 3,
	}

	h.Add("cmd1")
	h.Add("cmd2")
	h.Add("cmd3")
	h.Add("cmd4") // evicts cmd1

	if len(h.entries) != 3 {
		t.Errorf("len(entries) = %d, want %d", len(h.entries), 3)
	}
	if h.entries[0] != "cmd2" {
		t.Errorf("entries[0] = %q, want %q", h.entries[0], "cmd2")
	}
}

func TestHistory_Get(t *testing.T) {
	h := NewHistory("")
	h.Add("first")
	h.Add("second")
	h.Add("third")

	tests := []struct {
		index int
		want  string
	}{
		{0, "third"}, // most recent
		{1, "second"},
		{2, "first"},
		{3, ""},
		{-1, ""},
		{100, ""},
	}

	for _, tt := range tests {
		if got := h.Get(tt.index); got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	historyFile := filepath.Join(t.TempDir(), "nested", "history")

	h := NewHistory(historyFile)
	for _, line := range []string{"login alice", "open /settings", "back"} {
		h.Add(line)
	}
	if err := h.Save(); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	info, err := os.Stat(historyFile)
	if err != nil {
		t.Fatalf("history file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("history mode = %o, want 600", perm)
	}

	// A second save replaces the file and leaves no temp files behind.
	h.Add("logout")
	if err := h.Save(); err != nil {
		t.Fatalf("second Save() = %v", err)
	}
	names, err := os.ReadDir(filepath.Dir(historyFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Errorf("dir holds %d files after save, want 1", len(names))
	}

	loaded := NewHistory(historyFile)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	got := loaded.Entries()
	if len(got) != 4 || got[0] != "login alice" || got[3] != "logout" {
		t.Errorf("loaded %v", got)
	}
}

func TestHistory_LoadSkipsBlankLines(t *testing.T) {
	historyFile := filepath.Join(t.TempDir(), "history")
	if err := os.WriteFile(historyFile, []byte("status\n\n\nwhoami\n"), 0600); err != nil {
		t.Fatal(err)
	}

	h := NewHistory(historyFile)
	if err := h.Load(); err != nil {
		t.Fatal(err)
	}
	if got := h.Entries(); len(got) != 2 {
		t.Errorf("entries = %q, want status and whoami only", got)
	}
}

func TestHistory_Load_NonexistentFile(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "missing"))

	if err := h.Load(); err != nil {
		t.Errorf("Load of nonexistent file should not error: %v", err)
	}
	if len(h.entries) != 0 {
		t.Error("entries should be empty after loading nonexistent file")
	}
}

func TestHistory_MemoryOnly(t *testing.T) {
	h := NewHistory("")
	h.Add("cmd")

	if err := h.Save(); err != nil {
		t.Errorf("Save() = %v", err)
	}
	if err := h.Load(); err != nil {
		t.Errorf("Load() = %v", err)
	}
}
