// Package storage provides the embedded key-value layer used to persist
// client state between runs.
//
// The session store needs single-key reads and an atomic multi-key
// write. KVEngine offers exactly that plus prefix scans.
//
// Implementations:
//
//   - BadgerEngine: durable, on-disk, backed by Badger v3
//   - memory.Engine: map-backed, for tests and ephemeral sessions
package storage
