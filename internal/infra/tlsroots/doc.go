// Package tlsroots builds the trust store used to reach the backend.
//
// The system roots are used by default. A private CA file (api.ca_file)
// is added on top for backends behind an internal certificate authority.
// The same tls.Config serves the REST client and the presence dialer.
package tlsroots
