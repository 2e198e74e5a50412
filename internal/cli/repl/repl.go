package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Handler runs one command line. args[0] is the command name.
type Handler func(ctx context.Context, args []string) error

// ErrExit ends the loop when returned by a Handler.
var ErrExit = errors.New("exit")

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	reader    *bufio.Reader
	output    io.Writer
	completer *Completer
	history   *History
	handler   Handler
	prompt    func() string
}

// Option configures a REPL.
type Option func(*REPL)

// WithHistory records lines in h.
func WithHistory(h *History) Option {
	return func(r *REPL) {
		r.history = h
	}
}

// WithCompleter sets the command list used by help.
func WithCompleter(c *Completer) Option {
	return func(r *REPL) {
		r.completer = c
	}
}

// WithPrompt sets a prompt that is re-evaluated before every line.
func WithPrompt(fn func() string) Option {
	return func(r *REPL) {
		r.prompt = fn
	}
}

// New creates a new REPL instance.
func New(input io.Reader, output io.Writer, handler Handler, opts ...Option) *REPL {
	r := &REPL{
		reader:    bufio.NewReader(input),
		output:    output,
		completer: NewCompleter(),
		history:   NewHistory(""),
		handler:   handler,
		prompt:    func() string { return "mm> " },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadLine prints prompt and reads one line from the REPL's input. A
// last line without a newline is returned as is; io.EOF is returned only
// when nothing was read.
func (r *REPL) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.output, prompt)
	line, err := r.reader.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Run starts the REPL loop. It returns nil on exit, quit, end of input
// or when ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.ReadLine(r.prompt())
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		args := strings.Fields(line)
		switch args[0] {
		case "exit", "quit":
			return nil
		case "help":
			r.help(args[1:])
			continue
		case "history":
			r.printHistory()
			continue
		}

		if err := r.handler(ctx, args); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

func (r *REPL) help(args []string) {
	prefix := strings.Join(args, " ")
	matches := r.completer.Complete(prefix)
	if len(matches) == 0 {
		fmt.Fprintf(r.output, "no command matches %q\n", prefix)
		return
	}
	fmt.Fprintln(r.output, strings.Join(matches, "  "))
}

func (r *REPL) printHistory() {
	entries := r.history.Entries()
	for i, e := range entries {
		fmt.Fprintf(r.output, "%4d  %s\n", i+1, e)
	}
}
