package command

import (
	"crypto/tls"
	"fmt"
	"io"
	"sync"

	"github.com/mmsocial/mmclient/internal/cli/config"
	"github.com/mmsocial/mmclient/internal/cli/connection"
	"github.com/mmsocial/mmclient/internal/cli/output"
	"github.com/mmsocial/mmclient/internal/core/service"
	"github.com/mmsocial/mmclient/internal/infra/sealer"
	"github.com/mmsocial/mmclient/internal/infra/tlsroots"
	"github.com/mmsocial/mmclient/internal/storage"
	"github.com/mmsocial/mmclient/internal/storage/memory"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
	"github.com/mmsocial/mmclient/internal/telemetry/metric"
)

// tokenPurpose separates the session token key from other keys derived
// from the same key file.
const tokenPurpose = "mm-session-token"

// Runtime holds the per-invocation wiring shared by commands. Storage is
// opened on first use so that commands which never touch the session do
// not take the database lock.
type Runtime struct {
	Config     *config.CLIConfig
	ConfigPath string
	Logger     logger.Logger
	Metrics    *metric.Registry
	Out        io.Writer
	Err        io.Writer

	ephemeral bool

	mu    sync.Mutex
	kv    storage.KVEngine
	store *service.SessionStore
	http  *connection.HTTPClient
	auth  *service.AuthService

	tlsOnce sync.Once
	tls     *tls.Config
	tlsErr  error
}

func newRuntime(cfg *config.CLIConfig, path string, ephemeral bool, l logger.Logger, out, errOut io.Writer) *Runtime {
	return &Runtime{
		Config:     cfg,
		ConfigPath: path,
		Logger:     l,
		Metrics:    metric.NewRegistry(),
		Out:        out,
		Err:        errOut,
		ephemeral:  ephemeral,
	}
}

// Sessions returns the session store, opening storage if needed.
func (r *Runtime) Sessions() (*service.SessionStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		return r.store, nil
	}

	kv, err := r.openKV()
	if err != nil {
		return nil, err
	}

	opts := []service.SessionStoreOption{
		service.WithSessionLogger(r.Logger.With("component", "session")),
	}
	if r.Config.Storage.Encrypt && !r.ephemeral {
		c, err := sealer.FromKeyFile(r.Config.Storage.KeyFile, tokenPurpose)
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("load key file: %w", err)
		}
		opts = append(opts, service.WithCipher(c))
	}

	r.kv = kv
	r.store = service.NewSessionStore(kv, opts...)
	return r.store, nil
}

func (r *Runtime) openKV() (storage.KVEngine, error) {
	if r.ephemeral {
		return memory.New(), nil
	}
	engine, err := storage.NewBadgerEngine(storage.DefaultKVConfig(r.Config.Storage.Dir), logger.Slog(r.Logger))
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}
	return engine.RegisterMetrics(r.Metrics.Registerer()), nil
}

// TLSConfig returns the client TLS config for api.ca_file. It is nil when
// no CA file is configured.
func (r *Runtime) TLSConfig() (*tls.Config, error) {
	r.tlsOnce.Do(func() {
		r.tls, r.tlsErr = tlsroots.ClientConfig(r.Config.API.CAFile)
		if r.tlsErr != nil {
			r.tlsErr = fmt.Errorf("load api.ca_file: %w", r.tlsErr)
		}
	})
	return r.tls, r.tlsErr
}

// HTTP returns the backend client.
func (r *Runtime) HTTP() (*connection.HTTPClient, error) {
	tlsCfg, err := r.TLSConfig()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.http == nil {
		r.http = connection.NewHTTPClient(r.Config.API.BaseURL,
			connection.WithTimeout(r.Config.Timeout()),
			connection.WithTLSConfig(tlsCfg),
			connection.WithLogger(r.Logger.With("component", "http")),
		)
	}
	return r.http, nil
}

// Auth returns the auth service over the session store.
func (r *Runtime) Auth() (*service.AuthService, error) {
	store, err := r.Sessions()
	if err != nil {
		return nil, err
	}
	transport, err := r.HTTP()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.auth == nil {
		cfg := service.DefaultAuthServiceConfig()
		cfg.Metrics = r.Metrics
		cfg.Logger = r.Logger.With("component", "auth")
		r.auth = service.NewAuthService(transport, store, cfg)
	}
	return r.auth, nil
}

// Gate returns a session gate over the session store.
func (r *Runtime) Gate() (*service.Gate, error) {
	store, err := r.Sessions()
	if err != nil {
		return nil, err
	}
	return service.NewGate(store, r.Logger.With("component", "gate")), nil
}

// Formatter returns the formatter for the configured output format.
func (r *Runtime) Formatter() output.Formatter {
	format, err := output.ParseFormat(r.Config.Output)
	if err != nil {
		format = output.FormatTable
	}
	return output.NewFormatter(format)
}

// ReleaseStorage closes the storage engine while keeping the store's
// cached session readable. Long-running commands call it so that other
// invocations can open the database.
func (r *Runtime) ReleaseStorage() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kv == nil {
		return nil
	}
	err := r.kv.Close()
	r.kv = nil
	return err
}

// Close releases everything the runtime opened.
func (r *Runtime) Close() error {
	return r.ReleaseStorage()
}
