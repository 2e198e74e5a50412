// Package repl provides the interactive shell loop for mm-cli.
//
//   - repl.go: read-dispatch loop and line prompts
//   - completer.go: command name completion for help
//   - history.go: command history persistence
//
// The loop knows nothing about mm commands; the caller supplies a
// Handler and a prompt.
package repl
