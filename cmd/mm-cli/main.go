// Package main provides the entry point for mm-cli.
//
// mm-cli logs in to the mm backend, keeps the session on disk and holds
// a presence connection open on request.
package main

import (
	"fmt"
	"os"

	"github.com/mmsocial/mmclient/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(command.ExitFailure)
	}
}
