package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/mmsocial/mmclient/internal/cli/repl"
	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/core/service"
)

var shellCommands = []string{"login", "logout", "whoami", "status", "open", "back", "views"}

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "Interactive session that moves between the login and home views",
		Action: shellRun,
	}
}

// shell keeps a view stack in sync with the session store: every save or
// clear re-enters the gate.
type shell struct {
	rt    *Runtime
	gate  *service.Gate
	auth  *service.AuthService
	store *service.SessionStore
	nav   *service.Navigator
	repl  *repl.REPL
	input *os.File
}

func shellRun(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	gate, err := rt.Gate()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	auth, err := rt.Auth()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	store, err := rt.Sessions()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}

	sh := &shell{
		rt:    rt,
		gate:  gate,
		auth:  auth,
		store: store,
		nav:   service.NewNavigator(),
	}
	if f, ok := c.App.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sh.input = f
	}

	cancel := store.Subscribe(sh.onSessionChange)
	defer cancel()

	history := repl.NewHistory(filepath.Join(filepath.Dir(rt.ConfigPath), "history"))
	if err := history.Load(); err != nil {
		rt.Logger.Warn("load shell history", "error", err)
	}

	sh.repl = repl.New(c.App.Reader, rt.Out, sh.handle,
		repl.WithHistory(history),
		repl.WithCompleter(repl.NewCompleter(shellCommands...)),
		repl.WithPrompt(sh.prompt),
	)

	sh.gate.Enter(c.Context, sh.nav)
	err = sh.repl.Run(c.Context)

	if serr := history.Save(); serr != nil {
		rt.Logger.Warn("save shell history", "error", serr)
	}
	return err
}

func (s *shell) prompt() string {
	return fmt.Sprintf("mm:%s> ", s.nav.Current())
}

func (s *shell) onSessionChange(change domain.SessionChange) {
	if change.Cleared || !change.Valid {
		s.nav.ResetTo(domain.ViewLogin)
		return
	}
	s.gate.Enter(context.Background(), s.nav)
}

func (s *shell) handle(ctx context.Context, args []string) error {
	switch args[0] {
	case "login":
		return s.login(ctx, args[1:])
	case "logout":
		if err := s.auth.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.rt.Out, "Logged out")
		return nil
	case "whoami":
		identity, view := s.gate.Confirm(ctx, s.auth)
		if view != domain.ViewAuthenticated {
			s.nav.ResetTo(domain.ViewLogin)
			return errors.New("login required")
		}
		return s.rt.Formatter().Format(s.rt.Out, identity)
	case "status":
		return s.rt.Formatter().Format(s.rt.Out, currentStatus(ctx, s.gate, s.store))
	case "open":
		if len(args) != 2 {
			return errors.New("usage: open PATH")
		}
		return s.open(ctx, args[1])
	case "back":
		v, ok := s.gate.Back(ctx, s.nav)
		if !ok {
			fmt.Fprintf(s.rt.Out, "nothing to go back to (at %s)\n", v)
			return nil
		}
		fmt.Fprintf(s.rt.Out, "back to %s\n", v)
		return nil
	case "views":
		views := s.nav.History()
		names := make([]string, len(views))
		for i, v := range views {
			names[i] = v.String()
		}
		fmt.Fprintln(s.rt.Out, strings.Join(names, " > "))
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
}

func (s *shell) login(ctx context.Context, args []string) error {
	if s.gate.Decide(ctx) == domain.ViewAuthenticated {
		fmt.Fprintln(s.rt.Out, "already logged in")
		return nil
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		var err error
		if username, err = s.repl.ReadLine("Username: "); err != nil {
			return err
		}
	}

	password, err := s.readPassword()
	if err != nil {
		return err
	}

	creds := domain.Credentials{Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return err
	}
	if _, err := s.auth.Login(ctx, creds); err != nil {
		return loginFailure(err, s.rt.Config.API.BaseURL)
	}
	fmt.Fprintf(s.rt.Out, "Logged in as %s\n", creds.Username)
	return nil
}

func (s *shell) readPassword() (string, error) {
	if s.input == nil {
		return s.repl.ReadLine("Password: ")
	}
	fmt.Fprint(s.rt.Out, "Password: ")
	b, err := term.ReadPassword(int(s.input.Fd()))
	fmt.Fprintln(s.rt.Out)
	return string(b), err
}

// open follows the route guard: protected paths without a session land
// on the login view, public paths with one land on home.
func (s *shell) open(ctx context.Context, path string) error {
	target := path
	if redirect, ok := s.gate.Guard(ctx, path); !ok {
		target = redirect
		fmt.Fprintf(s.rt.Out, "%s redirected to %s\n", path, redirect)
	}

	view := domain.ViewAuthenticated
	if service.IsPublicPath(target) {
		view = domain.ViewLogin
	}
	switch {
	case view == domain.ViewLogin:
		s.nav.ResetTo(view)
	case target == service.HomePath:
		s.gate.Enter(ctx, s.nav)
	case s.nav.Current() != view:
		s.nav.Push(view)
	}
	fmt.Fprintf(s.rt.Out, "at %s (%s)\n", target, view)
	return nil
}
