package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/mmsocial/mmclient/internal/storage"
)

// Engine is an in-memory storage.KVEngine.
type Engine struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	// failNext, when set, is returned by the next Update instead of
	// committing. Used by tests to simulate storage faults.
	failNext error
}

// Option configures the Engine.
type Option func(*Engine)

// WithData seeds the engine with initial content.
func WithData(data map[string][]byte) Option {
	return func(e *Engine) {
		for k, v := range data {
			e.data[k] = bytes.Clone(v)
		}
	}
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{data: make(map[string][]byte)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ storage.KVEngine = (*Engine)(nil)

// Get retrieves a value by key.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := e.View(ctx, func(r storage.Reader) error {
		var err error
		out, err = r.Get(key)
		return err
	})
	return out, err
}

// Set stores a key-value pair.
func (e *Engine) Set(ctx context.Context, key, value []byte) error {
	return e.Update(ctx, func(w storage.Writer) error {
		return w.Set(key, value)
	})
}

// Delete removes a key.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	return e.Update(ctx, func(w storage.Writer) error {
		return w.Delete(key)
	})
}

// View runs fn under the read lock.
func (e *Engine) View(ctx context.Context, fn func(r storage.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return storage.ErrClosed
	}
	return fn(reader{data: e.data})
}

// Update stages the writes made by fn and applies them all at once.
func (e *Engine) Update(ctx context.Context, fn func(w storage.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &batch{}
	if err := fn(b); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return storage.ErrClosed
	}
	if err := e.failNext; err != nil {
		e.failNext = nil
		return err
	}

	for _, op := range b.ops {
		if op.del {
			delete(e.data, op.key)
			continue
		}
		e.data[op.key] = op.value
	}
	return nil
}

// Scan visits keys with the given prefix in lexical order.
func (e *Engine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return storage.ErrClosed
	}
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	values := make(map[string][]byte, len(keys))
	for _, k := range keys {
		values[k] = bytes.Clone(e.data[k])
	}
	e.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), values[k]) {
			break
		}
	}
	return nil
}

// Close marks the engine closed. Data is dropped.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.data = nil
	return nil
}

// FailNextUpdate makes the next Update return err without committing.
func (e *Engine) FailNextUpdate(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

// Len returns the number of stored keys.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.data)
}

type reader struct {
	data map[string][]byte
}

func (r reader) Get(key []byte) ([]byte, error) {
	v, ok := r.data[string(key)]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

type op struct {
	key   string
	value []byte
	del   bool
}

type batch struct {
	ops []op
}

func (b *batch) Set(key, value []byte) error {
	b.ops = append(b.ops, op{key: string(key), value: bytes.Clone(value)})
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, op{key: string(key), del: true})
	return nil
}
