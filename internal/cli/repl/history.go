package repl

import (
	"bufio"
	"os"
	"path/filepath"
)

// DefaultHistorySize is the number of lines kept.
const DefaultHistorySize = 1000

// History manages command history for the REPL.
type History struct {
	entries []string
	maxSize int
	file    string
}

// NewHistory creates a History persisted to file. An empty file keeps
// history in memory only.
func NewHistory(file string) *History {
	return &History{
		entries: make([]string, 0),
		maxSize: DefaultHistorySize,
		file:    file,
	}
}

// Add adds a command to history. A repeat of the previous line is
// not recorded twice.
func (h *History) Add(cmd string) {
	if n := len(h.entries); n > 0 && h.entries[n-1] == cmd {
		return
	}
	h.entries = append(h.entries, cmd)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Get returns the history entry at index (0 = most recent).
func (h *History) Get(index int) string {
	if index < 0 || index >= len(h.entries) {
		return ""
	}
	return h.entries[len(h.entries)-1-index]
}

// Entries returns all entries, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Load loads history from file.
func (h *History) Load() error {
	if h.file == "" {
		return nil
	}
	file, err := os.Open(h.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			h.Add(line)
		}
	}
	return scanner.Err()
}

// Save writes history to file with owner-only permissions, replacing
// the previous file atomically. Passwords typed at a prompt never reach
// history; only command lines do.
func (h *History) Save() error {
	if h.file == "" {
		return nil
	}
	dir := filepath.Dir(h.file)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, entry := range h.entries {
		w.WriteString(entry)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), h.file)
}
