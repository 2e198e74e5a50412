// Package service contains the client's stateful components.
//
//   - SessionStore: durable token plus absolute expiry, observable
//   - AuthService: login exchange, identity fetch, logout
//   - Gate: routing decision derived from session validity
//
// Components receive their dependencies explicitly. There is no global
// session singleton; the CLI wires one SessionStore into everything that
// reads or writes the session.
package service
