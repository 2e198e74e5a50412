// Package output renders command results for mm-cli.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned text tables
//   - json.go, yaml.go: machine-readable output
//   - spinner.go: activity indicator for requests that may take a while
//
// Struct fields are labelled by their `table` tag, falling back to the
// `json` tag and then the field name. A `table:"-"` tag hides a field.
package output
