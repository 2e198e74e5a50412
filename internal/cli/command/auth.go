package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/mmsocial/mmclient/internal/cli/output"
	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/core/service"
)

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Username (prompted when omitted)",
			},
			&cli.StringFlag{
				Name:  "password-file",
				Usage: "Read the password from a file instead of prompting",
			},
		},
		Action: login,
	}
}

// LogoutCommand returns the logout command.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Clear the stored session",
		Action: logout,
	}
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show where the session gate would send you",
		Action: status,
	}
}

// WhoamiCommand returns the whoami command.
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Confirm the session with the backend and show the user",
		Action: whoami,
	}
}

type loginView struct {
	Username  string    `json:"username" yaml:"username"`
	TokenType string    `json:"token_type" yaml:"token_type"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

type statusView struct {
	View      string     `json:"view" yaml:"view"`
	Valid     bool       `json:"valid" yaml:"valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Remaining string     `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

func login(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	in := bufio.NewReader(c.App.Reader)

	username := c.String("username")
	if username == "" {
		fmt.Fprint(rt.Err, "Username: ")
		if username, err = readLine(in); err != nil {
			return cli.Exit(fmt.Sprintf("error: read username: %v", err), ExitFailure)
		}
	}

	password, err := readPassword(c, rt.Err, in)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: read password: %v", err), ExitFailure)
	}

	creds := domain.Credentials{Username: username, Password: password}
	if err := creds.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}

	auth, err := rt.Auth()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}

	var spinner *output.Spinner
	if isTerminal(rt.Err) {
		spinner = output.NewSpinner(rt.Err, "Logging in as "+creds.Username)
		spinner.Start()
	}

	ctx, cancel := context.WithTimeout(c.Context, rt.Config.Timeout()+5*time.Second)
	defer cancel()

	result, err := auth.Login(ctx, creds)
	if err != nil {
		if spinner != nil {
			spinner.Fail("Login failed")
		}
		return loginFailure(err, rt.Config.API.BaseURL)
	}
	if spinner != nil {
		spinner.Success("Logged in")
	}

	store, err := rt.Sessions()
	if err != nil {
		return err
	}
	view := loginView{Username: creds.Username, TokenType: result.TokenType}
	if sess, err := store.Current(ctx); err == nil {
		view.ExpiresAt = sess.ExpiresAtTime()
	}
	return rt.Formatter().Format(rt.Out, view)
}

// loginFailure turns a login error into the message for its class.
func loginFailure(err error, baseURL string) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return cli.Exit("login failed: invalid username or password", ExitAuthRequired)
	case errors.Is(err, domain.ErrTransportFailure):
		return cli.Exit(fmt.Sprintf("login failed: cannot reach %s", baseURL), ExitUnavailable)
	case errors.Is(err, domain.ErrServerFailure):
		if code := domain.StatusCode(err); code >= 300 {
			return cli.Exit(fmt.Sprintf("login failed: server answered %d", code), ExitUnavailable)
		}
		return cli.Exit("login failed: unreadable server response", ExitUnavailable)
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrLoginInFlight):
		return cli.Exit("login failed: too many attempts, try again shortly", ExitFailure)
	case errors.Is(err, domain.ErrStorageError):
		return cli.Exit(fmt.Sprintf("login failed: could not store session: %v", err), ExitFailure)
	default:
		return cli.Exit(fmt.Sprintf("login failed: %v", err), ExitFailure)
	}
}

func logout(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	auth, err := rt.Auth()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	if err := auth.Logout(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	fmt.Fprintln(rt.Out, "Logged out")
	return nil
}

func status(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	gate, err := rt.Gate()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	store, err := rt.Sessions()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}

	return rt.Formatter().Format(rt.Out, currentStatus(c.Context, gate, store))
}

// currentStatus reports the gate decision and the stored expiry.
func currentStatus(ctx context.Context, gate *service.Gate, store *service.SessionStore) statusView {
	view := gate.Decide(ctx)
	out := statusView{View: view.String(), Valid: view == domain.ViewAuthenticated}

	// An expired session still reports when it ended.
	if sess, _ := store.Current(ctx); sess != nil {
		at := sess.ExpiresAtTime()
		out.ExpiresAt = &at
		if out.Valid {
			out.Remaining = sess.Remaining(time.Now()).Round(time.Second).String()
		}
	}
	return out
}

func whoami(c *cli.Context) error {
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

	identity, view := gate.Confirm(c.Context, auth)
	if view != domain.ViewAuthenticated {
		return cli.Exit("login required", ExitAuthRequired)
	}
	return rt.Formatter().Format(rt.Out, identity)
}

func readPassword(c *cli.Context, prompt io.Writer, in *bufio.Reader) (string, error) {
	if path := c.String("password-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	if f, ok := c.App.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	return readLine(in)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
