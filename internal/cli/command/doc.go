// Package command provides CLI command definitions for mm-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: App, global flags, Before/After wiring
//   - runtime.go: per-invocation config, storage, services
//   - auth.go: login, logout, status, whoami
//   - presence.go: presence connection with optional reconnect
//   - shell.go: interactive shell over the session gate
//   - config.go: config show, path, init
//
// Commands follow a consistent pattern of reading the runtime, calling
// the appropriate service, and formatting output.
package command
