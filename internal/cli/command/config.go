package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mmsocial/mmclient/internal/cli/config"
	"github.com/mmsocial/mmclient/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:   "path",
				Usage:  "Show the configuration file path",
				Action: configPath,
			},
			{
				Name:  "init",
				Usage: "Write the effective configuration to the config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing file",
					},
				},
				Action: configInit,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	format, _ := output.ParseFormat(rt.Config.Output)
	if format == output.FormatTable {
		return rt.Formatter().Format(rt.Out, rt.Config.Flatten())
	}
	return rt.Formatter().Format(rt.Out, rt.Config)
}

func configPath(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	state := "exists"
	if _, err := os.Stat(rt.ConfigPath); os.IsNotExist(err) {
		state = "not found, using defaults"
	}
	fmt.Fprintf(rt.Out, "%s (%s)\n", rt.ConfigPath, state)
	return nil
}

func configInit(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	if _, err := os.Stat(rt.ConfigPath); err == nil && !c.Bool("force") {
		return cli.Exit(fmt.Sprintf("error: %s already exists (use --force to overwrite)", rt.ConfigPath), ExitFailure)
	}
	if err := config.Save(rt.Config, rt.ConfigPath); err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	fmt.Fprintf(rt.Out, "Wrote %s\n", rt.ConfigPath)
	return nil
}
