package presence

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmsocial/mmclient/internal/cli/connection"
	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
	"github.com/mmsocial/mmclient/internal/telemetry/metric"
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds presence connection settings.
type Config struct {
	// URL is the presence server base, e.g. ws://127.0.0.1:8080.
	URL string

	// Peers are seeded into the table as offline before the first event.
	Peers []int64

	// HandshakeTimeout bounds the WebSocket upgrade.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration

	// CloseTimeout is how long Close waits for the server to answer the
	// close frame before dropping the connection.
	CloseTimeout time.Duration
}

// DefaultConfig returns a Config for the given server base.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CloseTimeout:     time.Second,
	}
}

// Client is a single-use presence connection for one identity. After it
// reaches Disconnected it stays there; create a new Client to reconnect.
type Client struct {
	cfg    Config
	self   domain.Identity
	dialer *websocket.Dialer
	header http.Header
	table  *Table

	logger   logger.Logger
	metrics  *metric.Registry
	onChange func(from, to State)

	state  atomic.Int32
	opened atomic.Bool

	// mu serializes writes and lifecycle changes of conn.
	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool

	errMu   sync.Mutex
	lastErr error

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records presence metrics in r.
func WithMetrics(r *metric.Registry) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// WithDialer overrides the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithBearer sends token in the Authorization header of the upgrade
// request.
func WithBearer(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithTable makes the client write into t instead of a fresh table.
func WithTable(t *Table) Option {
	return func(c *Client) {
		c.table = t
	}
}

// WithStateListener calls fn after every state transition. fn runs with
// the connection lock held and must not block or call Close.
func WithStateListener(fn func(from, to State)) Option {
	return func(c *Client) {
		c.onChange = fn
	}
}

// New creates a client for self. It does not connect.
func New(cfg Config, self domain.Identity, opts ...Option) *Client {
	defaults := DefaultConfig(cfg.URL)
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaults.CloseTimeout
	}

	c := &Client{
		cfg:    cfg,
		self:   self,
		header: make(http.Header),
		logger: logger.Discard(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	if c.table == nil {
		c.table = NewTable()
	}
	c.table.Seed(cfg.Peers...)
	c.logger = c.logger.With("user_id", self.ID)
	return c
}

// Open connects, announces self online and starts reading peer events.
// ctx bounds the handshake only; the connection lives until Close or a
// fault. Open may be called once.
func (c *Client) Open(ctx context.Context) error {
	if !c.opened.CompareAndSwap(false, true) {
		return domain.ErrInvalidArgument.WithDetails("presence client already opened")
	}
	c.transition(StateConnecting)

	url := connection.PresenceURL(c.cfg.URL, c.self.ID)
	conn, resp, err := c.dialer.DialContext(ctx, url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("presence dial failed", "url", url, "error", err)
		err = domain.ErrTransportFailure.WithCause(err)
		c.setErr(err)
		c.transition(StateDisconnected)
		close(c.done)
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		conn.Close()
		c.transition(StateDisconnected)
		close(c.done)
		return domain.ErrPresenceNotOpen.WithDetails("closed during handshake")
	}
	c.conn = conn
	// The online frame goes out before the reader starts.
	if err := c.writeEvent(Event{UserID: c.self.ID, Online: true}); err != nil {
		c.mu.Unlock()
		conn.Close()
		err = domain.ErrPresenceConnectionLost.WithCause(err)
		c.setErr(err)
		c.transition(StateDisconnected)
		close(c.done)
		return err
	}
	c.transition(StateOpen)
	c.mu.Unlock()

	c.table.Set(c.self.ID, true)
	c.logger.Info("presence connected", "url", url)

	go c.readLoop(conn)
	return nil
}

// Close announces self offline if the connection is still open, then
// closes it. Only the first call does anything.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.teardown(ctx)
	})
	return c.closeErr
}

func (c *Client) teardown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	wasOpen := c.State() == StateOpen

	var err error
	if wasOpen {
		// Offline is the last data frame on this connection.
		err = c.writeEvent(Event{UserID: c.self.ID, Online: false})
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if cerr := conn.WriteControl(websocket.CloseMessage, msg, c.writeDeadline(ctx)); cerr != nil && err == nil {
			err = cerr
		}
		c.transition(StateDisconnected)
	}
	c.mu.Unlock()

	if !wasOpen {
		// Either never connected or already faulted; nothing can be sent.
		return nil
	}

	// Give the server a moment to echo the close frame.
	timer := time.NewTimer(c.cfg.CloseTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
	case <-ctx.Done():
	}
	conn.Close()
	<-c.done

	c.table.Set(c.self.ID, false)
	if err != nil {
		c.logger.Warn("presence offline announcement failed", "error", err)
		return domain.ErrPresenceConnectionLost.WithCause(err)
	}
	c.logger.Info("presence disconnected")
	return nil
}

// IsOnline reports whether userID is online. For the client's own
// identity this is the connection state, not the table entry.
func (c *Client) IsOnline(userID int64) bool {
	if userID == c.self.ID {
		return c.State() == StateOpen
	}
	online, _ := c.table.Get(userID)
	return online
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Err returns the fault that ended the connection, or nil.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Done is closed once the connection has ended, for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Table returns the presence table.
func (c *Client) Table() *Table {
	return c.table
}

// Self returns the identity this client announces.
func (c *Client) Self() domain.Identity {
	return c.self
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}

		ev, err := ParseEvent(data)
		if err != nil {
			c.logger.Debug("presence frame discarded", "error", err, "size", len(data))
			c.metrics.ObservePresence(metric.KindMalformed)
			continue
		}

		c.table.Set(ev.UserID, ev.Online)
		if ev.Online {
			c.metrics.ObservePresence(metric.KindOnline)
		} else {
			c.metrics.ObservePresence(metric.KindOffline)
		}
	}
}

func (c *Client) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.transition(StateDisconnected)
	c.mu.Unlock()

	conn.Close()
	lost := domain.ErrPresenceConnectionLost.WithCause(err)
	c.setErr(lost)
	c.table.Set(c.self.ID, false)
	c.metrics.ObservePresence(metric.KindConnectionLost)

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Info("presence closed by server", "code", ce.Code, "text", ce.Text)
		return
	}
	c.logger.Info("presence connection lost", "error", err)
}

// writeEvent sends one frame. Callers hold c.mu.
func (c *Client) writeEvent(ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func (c *Client) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.metrics.SetPresenceState(int(to))
	c.logger.Debug("presence state", "from", from.String(), "to", to.String())
	if c.onChange != nil {
		c.onChange(from, to)
	}
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}
