// Package connection provides the transport to the backend.
//
//   - http.go: JSON-over-HTTP client with bearer auth and request IDs
//   - ws.go: derivation of the presence WebSocket address from the API base
package connection
