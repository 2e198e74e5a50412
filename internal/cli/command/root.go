package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mmsocial/mmclient/internal/cli/config"
	"github.com/mmsocial/mmclient/internal/infra/buildinfo"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
)

// Exit codes.
const (
	ExitFailure      = 1
	ExitAuthRequired = 2
	ExitUnavailable  = 3
)

const runtimeKey = "runtime"

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:     "mm-cli",
		Usage:    "mm social network command-line client",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			LoginCommand(),
			LogoutCommand(),
			StatusCommand(),
			WhoamiCommand(),
			PresenceCommand(),
			ShellCommand(),
			ConfigCommand(),
		},
		Before: setup,
		After:  teardown,
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Config file path (default ~/.mm/cli.yaml)",
			EnvVars: []string{"MM_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "api-url",
			Usage: "Backend API base URL (overrides api.base_url)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging on stderr",
		},
		&cli.BoolFlag{
			Name:  "ephemeral",
			Usage: "Keep the session in memory for this invocation only",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ConfigPath string
	APIURL     string
	Output     string
	Verbose    bool
	Ephemeral  bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		ConfigPath: c.String("config"),
		APIURL:     c.String("api-url"),
		Output:     c.String("output"),
		Verbose:    c.Bool("verbose"),
		Ephemeral:  c.Bool("ephemeral"),
	}
}

// overrides maps set flags to config keys.
func (f *GlobalFlags) overrides() map[string]any {
	m := map[string]any{}
	if f.APIURL != "" {
		m["api.base_url"] = f.APIURL
	}
	if f.Output != "" {
		m["output"] = f.Output
	}
	if f.Verbose {
		m["log.level"] = "debug"
	}
	return m
}

func setup(c *cli.Context) error {
	flags := ParseGlobalFlags(c)

	path := flags.ConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path, flags.overrides())
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	logger.SetDefault(log)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[runtimeKey] = newRuntime(cfg, path, flags.Ephemeral, log, c.App.Writer, c.App.ErrWriter)
	return nil
}

func teardown(c *cli.Context) error {
	rt, ok := c.App.Metadata[runtimeKey].(*Runtime)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, runtimeKey)
	return rt.Close()
}

// GetRuntime retrieves the runtime set up by the Before hook.
func GetRuntime(c *cli.Context) (*Runtime, error) {
	if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
		return rt, nil
	}
	return nil, errors.New("runtime not initialized")
}

// PrintError prints an error message to the app's error writer.
func PrintError(c *cli.Context, format string, args ...any) {
	fmt.Fprintf(c.App.ErrWriter, "error: "+format+"\n", args...)
}
