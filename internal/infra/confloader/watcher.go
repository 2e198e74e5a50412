package confloader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before a change is
// reported.
const DefaultSettle = 100 * time.Millisecond

// Watcher reports changes to one configuration file. Editors often write
// a file in several steps, so bursts of events are coalesced into one
// notification.
type Watcher struct {
	fs     *fsnotify.Watcher
	path   string
	settle time.Duration
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithSettle sets the quiet period; see DefaultSettle.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// NewWatcher watches path. The parent directory is watched so that
// editors that replace the file by rename are still seen; the file itself
// does not need to exist yet.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:     fw,
		path:   filepath.Clean(path),
		settle: DefaultSettle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	return w, nil
}

// Run calls fn once per settled change until ctx ends or Close is
// called. fn runs on the Run goroutine.
func (w *Watcher) Run(ctx context.Context, fn func(path string)) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("config file event", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(w.settle)
		case <-timer.C:
			fn(w.path)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fs.Close()
	})
	return w.closeErr
}
