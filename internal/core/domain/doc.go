// Package domain defines the core domain models for the mm client.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Session: bearer token plus its absolute expiry
//   - Credentials, LoginResult: the login exchange
//   - Identity: the authenticated user as reported by /user/me
//   - View: the outcome of a session gate decision
//   - Errors: the client error taxonomy
//
// Presence wire types live in the presence package, next to the codec.
package domain
