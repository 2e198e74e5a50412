package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// BadgerEngine implements KVEngine using Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	closed     atomic.Bool
	lastGCTime atomic.Int64 // Unix milliseconds

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge

	// Shutdown
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBadgerEngine opens (or creates) a Badger database in cfg.Dir.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.Badger.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := cfg.Dir
	if cfg.Badger.InMemory {
		dir = ""
	}

	badgerCfg := cfg.Badger
	opts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{logger: logger}).
		WithInMemory(badgerCfg.InMemory).
		WithSyncWrites(badgerCfg.SyncWrites).
		WithNumVersionsToKeep(1)
	if badgerCfg.CacheSize > 0 {
		opts = opts.WithBlockCacheSize(badgerCfg.CacheSize)
	}
	if badgerCfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(badgerCfg.ValueLogFileSize)
	}
	if badgerCfg.MemTableSize > 0 {
		opts = opts.WithMemTableSize(badgerCfg.MemTableSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	engine := &BadgerEngine{
		db:     db,
		cfg:    badgerCfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if !badgerCfg.InMemory {
		engine.wg.Add(1)
		go engine.gcLoop()
	}

	logger.Debug("badger engine opened",
		"dir", cfg.Dir,
		"in_memory", badgerCfg.InMemory,
		"sync_writes", badgerCfg.SyncWrites)

	return engine, nil
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := e.View(ctx, func(r Reader) error {
		var err error
		value, err = r.Get(key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	return e.Update(ctx, func(w Writer) error {
		return w.Set(key, value)
	})
}

// Delete removes a key.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	return e.Update(ctx, func(w Writer) error {
		return w.Delete(key)
	})
}

// View runs fn in a read-only Badger transaction.
func (e *BadgerEngine) View(ctx context.Context, fn func(r Reader) error) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.View(func(txn *badger.Txn) error {
		return fn(badgerReader{txn: txn})
	})
}

// Update runs fn in a read-write Badger transaction. *badger.Txn already
// satisfies Writer.
func (e *BadgerEngine) Update(ctx context.Context, fn func(w Writer) error) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return fn(txn)
	})
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				break
			}
		}
		return nil
	})
}

// GC runs value log garbage collection until Badger reports nothing left
// to rewrite.
func (e *BadgerEngine) GC(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if e.cfg.InMemory {
		return nil
	}

	runs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.logger.Debug("badger gc completed", "rewrites", runs)
	return nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats() KVStats {
	lsm, vlog := e.db.Size()
	return KVStats{
		TotalSize:    uint64(lsm + vlog),
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
	}
}

// Close stops background work and closes the database. It is safe to
// call more than once.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopCh)
		e.wg.Wait()

		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
		e.logger.Debug("badger engine closed")
	})
	return err
}

func (e *BadgerEngine) check(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// RegisterMetrics registers size gauges with the given registerer and
// starts refreshing them. Returns the engine for method chaining.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) *BadgerEngine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mm",
		Subsystem: "session_store",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mm",
		Subsystem: "session_store",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mm",
		Subsystem: "session_store",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})

	reg.MustRegister(e.metricsLSMSize, e.metricsValueLogSize, e.metricsLastGCTime)
	e.updateMetrics()

	e.wg.Add(1)
	go e.metricsUpdateLoop()

	return e
}

func (e *BadgerEngine) updateMetrics() {
	stats := e.Stats()
	e.metricsLSMSize.Set(float64(stats.LSMSize))
	e.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	if stats.LastGCTime > 0 {
		e.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
	}
}

func (e *BadgerEngine) metricsUpdateLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.updateMetrics()
		case <-e.stopCh:
			return
		}
	}
}

func (e *BadgerEngine) gcLoop() {
	defer e.wg.Done()

	interval, err := time.ParseDuration(e.cfg.GCInterval)
	if err != nil || interval <= 0 {
		e.logger.Warn("invalid gc_interval, using default 10m", "value", e.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := e.GC(ctx); err != nil {
				e.logger.Warn("auto gc failed", "error", err)
			}
			cancel()
		case <-e.stopCh:
			return
		}
	}
}

type badgerReader struct {
	txn *badger.Txn
}

func (r badgerReader) Get(key []byte) ([]byte, error) {
	item, err := r.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// info chatter is demoted to debug so it stays out of CLI output.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
