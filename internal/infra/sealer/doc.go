// Package sealer encrypts small secrets at rest.
//
// A Cipher is an AEAD with the nonce prepended to every sealed value.
// Keys come from a local key file: 32 random bytes created on first use
// with mode 0600. The file content is never used directly. Each consumer
// derives its own subkey with HKDF-SHA256 and a purpose label, so one key
// file can serve several stores without key reuse.
package sealer
