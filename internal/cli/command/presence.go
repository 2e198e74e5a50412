package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/mmsocial/mmclient/internal/cli/config"
	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/infra/confloader"
	"github.com/mmsocial/mmclient/internal/infra/shutdown"
	"github.com/mmsocial/mmclient/internal/presence"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
)

// PresenceCommand returns the presence command.
func PresenceCommand() *cli.Command {
	return &cli.Command{
		Name:  "presence",
		Usage: "Go online and follow peer presence until interrupted",
		Flags: []cli.Flag{
			&cli.Int64SliceFlag{
				Name:  "peers",
				Usage: "User ids to follow, e.g. --peers 2,3 (default: every user the backend lists)",
			},
			&cli.BoolFlag{
				Name:  "reconnect",
				Usage: "Reconnect with exponential backoff when the connection is lost",
			},
			&cli.DurationFlag{
				Name:  "max-backoff",
				Value: time.Minute,
				Usage: "Upper bound between reconnect attempts",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address, e.g. :9090",
			},
		},
		Action: presenceRun,
	}
}

func presenceRun(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}

	gate, err := rt.Gate()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	auth, err := rt.Auth()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	identity, view := gate.Confirm(c.Context, auth)
	if view != domain.ViewAuthenticated {
		return cli.Exit("login required", ExitAuthRequired)
	}

	store, err := rt.Sessions()
	if err != nil {
		return err
	}
	token, _ := store.Read(c.Context)

	peers := c.Int64Slice("peers")
	if !c.IsSet("peers") {
		peers = knownPeers(c.Context, auth, identity.ID, rt.Logger)
	}
	fmt.Fprintf(rt.Out, "following %d peers\n", len(peers))

	// The session is cached from here on; let other invocations use the
	// database while this one runs.
	if err := rt.ReleaseStorage(); err != nil {
		rt.Logger.Warn("release session storage", "error", err)
	}

	wsURL, err := rt.Config.PresenceURL()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}
	tlsCfg, err := rt.TLSConfig()
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), ExitFailure)
	}

	sh := shutdown.NewHandler(5 * time.Second)

	if addr := c.String("metrics-addr"); addr != "" {
		if err := rt.Metrics.WatchSession(store); err != nil {
			rt.Logger.Warn("register session metrics", "error", err)
		}
		srv, err := serveMetrics(addr, rt)
		if err != nil {
			return cli.Exit(fmt.Sprintf("error: metrics listener: %v", err), ExitFailure)
		}
		sh.OnShutdown(srv.Shutdown)
	}

	if stop := watchLogLevel(rt); stop != nil {
		sh.OnShutdown(func(context.Context) error { return stop() })
	}

	table := presence.NewTable()
	cancelSub := table.Subscribe(func(ev presence.Event) {
		if ev.UserID == identity.ID {
			return
		}
		fmt.Fprintf(rt.Out, "peer %d %s\n", ev.UserID, onlineWord(ev.Online))
	})
	defer cancelSub()

	pcfg := presence.DefaultConfig(wsURL)
	pcfg.Peers = peers
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: pcfg.HandshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = c.Duration("max-backoff")
	bo.MaxElapsedTime = 0

	runner := &presenceRunner{
		newClient: func() *presence.Client {
			return presence.New(pcfg, *identity,
				presence.WithTable(table),
				presence.WithBearer(token),
				presence.WithDialer(dialer),
				presence.WithLogger(rt.Logger.With("component", "presence")),
				presence.WithMetrics(rt.Metrics),
				presence.WithStateListener(func(from, to presence.State) {
					fmt.Fprintf(rt.Out, "%s -> %s\n", from, to)
				}),
			)
		},
		reconnect: c.Bool("reconnect"),
		backoff:   bo,
		out:       rt.Out,
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	// Hooks run in reverse: stop the runner's loop, then announce offline.
	sh.OnShutdown(runner.Close)
	sh.OnShutdown(func(context.Context) error {
		cancel()
		return nil
	})

	result := make(chan error, 1)
	go func() {
		err := runner.Run(ctx)
		result <- err
		// A run that ends on its own still releases the hooks.
		cancel()
	}()

	if err := sh.WaitContext(ctx); err != nil {
		rt.Logger.Warn("shutdown", "error", err)
	}
	if err := <-result; err != nil {
		return cli.Exit(fmt.Sprintf("presence: %v", err), ExitUnavailable)
	}
	return nil
}

// userLister is the part of AuthService knownPeers needs.
type userLister interface {
	ListUsers(ctx context.Context) ([]domain.Identity, error)
}

// knownPeers returns the ids of every listed user except self. A failed
// listing is logged and yields no peers.
func knownPeers(ctx context.Context, users userLister, self int64, log logger.Logger) []int64 {
	list, err := users.ListUsers(ctx)
	if err != nil {
		log.Warn("list users", "error", err)
		return nil
	}
	peers := make([]int64, 0, len(list))
	for _, u := range list {
		if u.ID != self {
			peers = append(peers, u.ID)
		}
	}
	return peers
}

func onlineWord(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func serveMetrics(addr string, rt *Runtime) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Warn("metrics server stopped", "error", err)
		}
	}()
	fmt.Fprintf(rt.Err, "metrics on http://%s/metrics\n", ln.Addr())
	return srv, nil
}

// watchLogLevel reloads log.level when the config file changes. It
// returns nil when the file does not exist.
func watchLogLevel(rt *Runtime) func() error {
	if _, err := os.Stat(rt.ConfigPath); err != nil {
		return nil
	}
	w, err := confloader.NewWatcher(rt.ConfigPath, confloader.WithWatcherLogger(logger.Slog(rt.Logger)))
	if err != nil {
		rt.Logger.Warn("config watcher", "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(path string) {
			cfg, err := config.Load(path, nil)
			if err != nil {
				rt.Logger.Warn("config reload rejected", "error", err)
				return
			}
			if cfg.Log.Level != logger.CurrentLevel() {
				_ = logger.SetLevel(cfg.Log.Level)
				rt.Logger.Info("log level changed", "level", cfg.Log.Level)
			}
		})
	}()

	return func() error {
		cancel()
		err := w.Close()
		<-done
		return err
	}
}

// presenceRunner drives presence clients. Without reconnect it runs one
// client; with reconnect it replaces a faulted client after a backoff
// delay. Each client is single-use.
type presenceRunner struct {
	newClient func() *presence.Client
	reconnect bool
	backoff   backoff.BackOff
	out       io.Writer

	mu      sync.Mutex
	current *presence.Client
	closed  bool
}

// Run returns nil when ctx ends or Close is called, and the connection
// error otherwise.
func (r *presenceRunner) Run(ctx context.Context) error {
	for {
		client := r.newClient()
		if !r.setCurrent(client) {
			return nil
		}

		err := client.Open(ctx)
		if err == nil {
			r.backoff.Reset()
			select {
			case <-client.Done():
				err = client.Err()
			case <-ctx.Done():
				return nil
			}
		}

		if ctx.Err() != nil || r.isClosed() {
			return nil
		}
		if err == nil {
			return nil
		}
		if !r.reconnect {
			return err
		}

		wait := r.backoff.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		fmt.Fprintf(r.out, "connection lost, retrying in %s\n", wait.Round(time.Millisecond))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

// Close tears down the current client and stops further attempts.
func (r *presenceRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	client := r.current
	r.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close(ctx)
}

func (r *presenceRunner) setCurrent(c *presence.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.current = c
	return true
}

func (r *presenceRunner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
