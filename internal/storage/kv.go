package storage

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// Reader reads keys inside a consistent view.
type Reader interface {
	// Get returns ErrKeyNotFound if the key doesn't exist.
	Get(key []byte) ([]byte, error)
}

// Writer stages mutations inside a transaction.
type Writer interface {
	Set(key, value []byte) error
	Delete(key []byte) error
}

// KVEngine defines the interface for embedded key-value storage.
//
// Implementations must be safe for concurrent use. Update applies all
// staged mutations atomically: a concurrent View observes either none
// or all of them.
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a single key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(r Reader) error) error

	// Update runs fn in a read-write transaction. If fn returns an error
	// nothing is committed.
	Update(ctx context.Context, fn func(w Writer) error) error

	// Scan iterates over keys with a given prefix.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Close releases the engine. Calls after Close return ErrClosed.
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size.
	LSMSize uint64

	// ValueLogSize is the value log size.
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory.
	Dir string

	// Badger-specific configuration
	Badger BadgerConfig
}

// BadgerConfig contains Badger tuning parameters. The defaults are sized
// for a handful of small keys, not for a server workload.
type BadgerConfig struct {
	// GCInterval is the interval between automatic value log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the discard ratio passed to RunValueLogGC (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 1MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 16MB
	ValueLogFileSize int64

	// MemTableSize is the memtable size in bytes.
	// Default: 4MB
	MemTableSize int64

	// SyncWrites fsyncs after each commit.
	// Default: true
	SyncWrites bool

	// InMemory keeps everything in memory. Dir is ignored.
	InMemory bool
}

// DefaultKVConfig returns the default KV configuration.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        1 << 20,  // 1MB
		ValueLogFileSize: 16 << 20, // 16MB
		MemTableSize:     4 << 20,  // 4MB
		SyncWrites:       true,
	}
}
