// Package config holds the mm-cli configuration.
//
//   - spec.go: CLIConfig and its defaults (~/.mm/cli.yaml)
//   - loader.go: layered loading (default, file, MM_* env, flags) and Save
//   - verify.go: validation of loaded values
//
// The backend base URL is the only value most users ever set. Everything
// else, including the presence address, is derived from it or defaulted.
package config
