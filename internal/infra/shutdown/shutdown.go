package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	hooks   []func(context.Context) error
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
	err     error
}

// NewHandler creates a new shutdown handler. timeout bounds all hooks
// together.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		hooks:   make([]func(context.Context) error, 0),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Wait blocks until SIGINT or SIGTERM, then runs the hooks.
func (h *Handler) Wait() error {
	return h.WaitContext(context.Background())
}

// WaitContext blocks until a signal arrives or ctx is done, then runs the
// hooks. Context cancellation is a normal stop, not an error.
func (h *Handler) WaitContext(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
	case <-h.done:
	}
	return h.Shutdown()
}

// Shutdown runs the hooks now. Only the first call runs them; later calls
// return the same result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]func(context.Context) error, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		h.err = errors.Join(errs...)
		close(h.done)
	})
	<-h.done
	return h.err
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
