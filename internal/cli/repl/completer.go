package repl

import "strings"

// Builtins are handled by the loop itself.
var Builtins = []string{"help", "history", "exit", "quit"}

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over commands plus the builtins.
func NewCompleter(commands ...string) *Completer {
	all := make([]string, 0, len(commands)+len(Builtins))
	all = append(all, commands...)
	all = append(all, Builtins...)
	return &Completer{commands: all}
}

// Complete returns the commands starting with prefix, in registration
// order. An empty prefix matches everything.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
