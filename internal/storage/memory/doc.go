// Package memory provides a map-backed storage.KVEngine.
//
// It is used in tests and by `--ephemeral` runs where the session must
// not outlive the process. Update stages writes and applies them under a
// single lock, so multi-key writes are atomic like their Badger
// counterparts.
package memory
