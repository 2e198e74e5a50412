package presence

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/telemetry/metric"
)

const waitTimeout = 3 * time.Second

var self = domain.Identity{ID: 42, Username: "alice"}

// presenceServer accepts WebSocket upgrades and hands each server-side
// connection to the test.
type presenceServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn

	mu      sync.Mutex
	paths   []string
	headers []http.Header
}

func newPresenceServer(t *testing.T) *presenceServer {
	t.Helper()
	ps := &presenceServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.paths = append(ps.paths, r.URL.Path)
		ps.headers = append(ps.headers, r.Header.Clone())
		ps.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ps.conns <- conn
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *presenceServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *presenceServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ps.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("no presence connection")
		return nil
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	ev, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("server got malformed frame %s: %v", data, err)
	}
	return ev
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// drain reads frames until the connection ends and returns the events
// seen. Non-event frames fail the test.
func drain(t *testing.T, conn *websocket.Conn) <-chan []Event {
	out := make(chan []Event, 1)
	go func() {
		var events []Event
		for {
			_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
			_, data, err := conn.ReadMessage()
			if err != nil {
				out <- events
				return
			}
			ev, err := ParseEvent(data)
			if err != nil {
				t.Errorf("server got malformed frame %s", data)
				continue
			}
			events = append(events, ev)
		}
	}()
	return out
}

// watch forwards table changes to a channel.
func watch(tbl *Table) <-chan Event {
	ch := make(chan Event, 16)
	tbl.Subscribe(func(ev Event) { ch <- ev })
	return ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for table change")
		return Event{}
	}
}

func openClient(t *testing.T, ps *presenceServer, opts ...Option) (*Client, *websocket.Conn) {
	t.Helper()
	cfg := DefaultConfig(ps.url())
	cfg.CloseTimeout = 200 * time.Millisecond
	c := New(cfg, self, opts...)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, ps.accept(t)
}

func TestClient_OpenAnnouncesOnlineFirst(t *testing.T) {
	ps := newPresenceServer(t)

	tbl := NewTable()
	changes := watch(tbl)
	c, conn := openClient(t, ps, WithTable(tbl), WithBearer("tok"))

	// The server pushes a peer event before reading anything.
	send(t, conn, `{"Status":{"user_id":7,"online":true}}`)

	if ev := readEvent(t, conn); ev != (Event{UserID: 42, Online: true}) {
		t.Errorf("first frame = %+v, want self online", ev)
	}

	// Self is marked online before any inbound event is applied.
	if ev := next(t, changes); ev != (Event{UserID: 42, Online: true}) {
		t.Errorf("first table change = %+v", ev)
	}
	if ev := next(t, changes); ev != (Event{UserID: 7, Online: true}) {
		t.Errorf("second table change = %+v", ev)
	}

	if c.State() != StateOpen || !c.IsOnline(42) {
		t.Errorf("State() = %v, IsOnline(self) = %v", c.State(), c.IsOnline(42))
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.paths[0] != "/ws/42" {
		t.Errorf("dialed path %q, want /ws/42", ps.paths[0])
	}
	if got := ps.headers[0].Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestClient_PeerTransitionsInOrder(t *testing.T) {
	ps := newPresenceServer(t)
	c, conn := openClient(t, ps)
	changes := watch(c.Table())
	readEvent(t, conn)

	if c.IsOnline(7) {
		t.Error("unknown peer should be offline")
	}

	send(t, conn, `{"Status":{"user_id":7,"online":true}}`)
	next(t, changes)
	if !c.IsOnline(7) {
		t.Error("IsOnline(7) = false after online event")
	}

	send(t, conn, `{"Status":{"user_id":7,"online":false}}`)
	next(t, changes)
	if c.IsOnline(7) {
		t.Error("IsOnline(7) = true after offline event")
	}
}

func TestClient_MalformedFramesAreDiscarded(t *testing.T) {
	ps := newPresenceServer(t)
	reg := metric.NewRegistry()

	cfg := DefaultConfig(ps.url())
	cfg.Peers = []int64{2, 3}
	c := New(cfg, self, WithMetrics(reg))
	changes := watch(c.Table())
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close(context.Background())
	conn := ps.accept(t)
	readEvent(t, conn)
	next(t, changes) // self online

	for _, frame := range []string{
		`{"Status":{"online":true}}`,
		`{"Status":{"user_id":2}}`,
		`{"Chat":{"from":2,"text":"hi"}}`,
		`not json`,
	} {
		send(t, conn, frame)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xff}); err != nil {
		t.Fatal(err)
	}
	send(t, conn, `{"Status":{"user_id":3,"online":true}}`)

	if ev := next(t, changes); ev != (Event{UserID: 3, Online: true}) {
		t.Fatalf("table change = %+v, want peer 3 online", ev)
	}

	want := []Event{{UserID: 2}, {UserID: 3, Online: true}, {UserID: 42, Online: true}}
	snap := c.Table().Snapshot()
	if len(snap) != len(want) {
		t.Fatalf("Snapshot() = %v", snap)
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %+v, want %+v", i, snap[i], want[i])
		}
	}
	if c.State() != StateOpen || c.Err() != nil {
		t.Errorf("State() = %v, Err() = %v", c.State(), c.Err())
	}

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, line := range []string{
		`mm_presence_events_total{kind="malformed"} 5`,
		`mm_presence_events_total{kind="online"} 1`,
		`mm_presence_connection_state 2`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("metrics missing %q", line)
		}
	}
}

func TestClient_CloseSendsOfflineLast(t *testing.T) {
	ps := newPresenceServer(t)
	c, conn := openClient(t, ps)
	frames := drain(t, conn)

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	var events []Event
	select {
	case events = <-frames:
	case <-time.After(waitTimeout):
		t.Fatal("server never saw the connection end")
	}

	want := []Event{{UserID: 42, Online: true}, {UserID: 42, Online: false}}
	if len(events) != len(want) {
		t.Fatalf("server saw %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, events[i], want[i])
		}
	}

	if c.State() != StateDisconnected || c.IsOnline(42) {
		t.Errorf("after Close: State() = %v, IsOnline(self) = %v", c.State(), c.IsOnline(42))
	}
	if c.Err() != nil {
		t.Errorf("graceful close recorded a fault: %v", c.Err())
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Close")
	}
}

func TestClient_FaultSkipsOffline(t *testing.T) {
	ps := newPresenceServer(t)

	var mu sync.Mutex
	var transitions []State
	c, conn := openClient(t, ps, WithStateListener(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	}))
	readEvent(t, conn)

	// Drop the TCP connection without a close handshake.
	conn.UnderlyingConn().Close()

	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatal("client did not notice the dropped connection")
	}

	if !errors.Is(c.Err(), domain.ErrPresenceConnectionLost) {
		t.Errorf("Err() = %v, want ErrPresenceConnectionLost", c.Err())
	}
	if c.IsOnline(42) {
		t.Error("IsOnline(self) = true after fault")
	}
	if online, _ := c.Table().Get(42); online {
		t.Error("table still marks self online after fault")
	}

	// Nothing can be sent any more; Close is a quiet no-op.
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("Close() after fault error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateOpen, StateDisconnected}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestClient_ServerCloseIsFault(t *testing.T) {
	ps := newPresenceServer(t)
	c, conn := openClient(t, ps)
	readEvent(t, conn)

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatal("client did not notice the close")
	}
	if !errors.Is(c.Err(), domain.ErrPresenceConnectionLost) {
		t.Errorf("Err() = %v", c.Err())
	}

	// The server must not receive an offline frame after its own close.
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_ = c.Close(context.Background())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		t.Errorf("unexpected frame after close: %s", data)
	}
}

func TestClient_DialFailure(t *testing.T) {
	ps := newPresenceServer(t)
	url := ps.url()
	ps.srv.Close()

	c := New(DefaultConfig(url), self)
	err := c.Open(context.Background())
	if !errors.Is(err, domain.ErrTransportFailure) {
		t.Fatalf("Open() error = %v, want ErrTransportFailure", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v", c.State())
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after failed Open")
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClient_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "no")
	}))
	defer srv.Close()

	c := New(DefaultConfig("ws"+strings.TrimPrefix(srv.URL, "http")), self)
	if err := c.Open(context.Background()); !errors.Is(err, domain.ErrTransportFailure) {
		t.Fatalf("Open() error = %v", err)
	}
}

func TestClient_OpenOnce(t *testing.T) {
	ps := newPresenceServer(t)
	c, _ := openClient(t, ps)

	if err := c.Open(context.Background()); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("second Open() error = %v", err)
	}
}

func TestClient_CloseBeforeOpen(t *testing.T) {
	ps := newPresenceServer(t)
	c := New(DefaultConfig(ps.url()), self)

	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Open(context.Background()); !errors.Is(err, domain.ErrPresenceNotOpen) {
		t.Errorf("Open() after Close error = %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v", c.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateOpen:         "open",
		State(9):          "unknown",
	} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
