// Package logger provides structured logging for the mm client.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, handler setup, dynamic level
//   - context.go: context propagation of the logger and request IDs
//   - redact.go: masking of passwords, bearer tokens and JWTs
//
// CLI commands log to stderr so stdout stays clean for formatted output.
package logger
