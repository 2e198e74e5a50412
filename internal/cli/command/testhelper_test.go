package command

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"
)

// mockServer creates a test HTTP server with custom handlers.
type mockServer struct {
	*httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
}

// newMockServer creates a new mock server serving under /api/v1.
func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	return startMockServer(t, httptest.NewServer)
}

// newTLSMockServer is newMockServer over https with a self-signed
// certificate.
func newTLSMockServer(t *testing.T) *mockServer {
	t.Helper()
	return startMockServer(t, httptest.NewTLSServer)
}

func startMockServer(t *testing.T, start func(http.Handler) *httptest.Server) *mockServer {
	m := &mockServer{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		handler, ok := m.handlers[strings.TrimPrefix(r.URL.Path, "/api/v1")]
		m.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// handle registers a handler for an API path such as /auth/login.
func (m *mockServer) handle(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

func (m *mockServer) apiURL() string {
	return m.URL + "/api/v1"
}

// writeCA stores the server certificate as a PEM file and returns its path.
func (m *mockServer) writeCA(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: m.Certificate().Raw})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return path
}

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// loginOK answers logins with token for ttl seconds.
func loginOK(token string, ttl int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   ttl,
		})
	}
}

// testEnv is one isolated CLI home: config file, session database and
// key file under a temp dir.
type testEnv struct {
	t          *testing.T
	dir        string
	configPath string
	files      int
}

func newTestEnv(t *testing.T, apiURL string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{t: t, dir: dir, configPath: filepath.Join(dir, "cli.yaml")}
	env.writeConfig(apiURL, "")
	return env
}

// writeConfig replaces the config file. caFile is written as
// api.ca_file when set.
func (e *testEnv) writeConfig(apiURL, caFile string) {
	e.t.Helper()
	cfg := fmt.Sprintf(`api:
  base_url: %s
  timeout: 5s
`, apiURL)
	if caFile != "" {
		cfg += fmt.Sprintf("  ca_file: %s\n", caFile)
	}
	cfg += fmt.Sprintf(`storage:
  dir: %s
  encrypt: true
  key_file: %s
log:
  level: error
`, filepath.Join(e.dir, "session"), filepath.Join(e.dir, "session.key"))
	if err := os.WriteFile(e.configPath, []byte(cfg), 0600); err != nil {
		e.t.Fatalf("write config: %v", err)
	}
}

// writePassword stores a password file and returns its path.
func (e *testEnv) writePassword(pw string) string {
	e.t.Helper()
	e.files++
	path := filepath.Join(e.dir, fmt.Sprintf("password-%d", e.files))
	if err := os.WriteFile(path, []byte(pw+"\n"), 0600); err != nil {
		e.t.Fatalf("write password: %v", err)
	}
	return path
}

type runResult struct {
	stdout string
	stderr string
	err    error
}

// exitCode returns the exit code carried by err, 0 for nil.
func (r runResult) exitCode() int {
	if r.err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(r.err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

// run executes mm-cli against the env's config file.
func (e *testEnv) run(stdin string, args ...string) runResult {
	e.t.Helper()
	return e.runContext(context.Background(), stdin, &syncBuffer{}, args...)
}

// start runs mm-cli in the background until ctx ends. stdout can be read
// while it runs.
func (e *testEnv) start(ctx context.Context, args ...string) (*syncBuffer, <-chan runResult) {
	stdout := &syncBuffer{}
	done := make(chan runResult, 1)
	go func() {
		done <- e.runContext(ctx, "", stdout, args...)
	}()
	return stdout, done
}

func (e *testEnv) runContext(ctx context.Context, stdin string, stdout *syncBuffer, args ...string) runResult {
	stderr := &syncBuffer{}

	app := App()
	app.Reader = strings.NewReader(stdin)
	app.Writer = stdout
	app.ErrWriter = stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"mm-cli", "--config", e.configPath}, args...)
	err := app.RunContext(ctx, full)
	return runResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// login performs a successful login as alice.
func (e *testEnv) login() {
	e.t.Helper()
	res := e.run("", "login", "-u", "alice", "--password-file", e.writePassword("secret"))
	if res.err != nil {
		e.t.Fatalf("login: %v (stderr %q)", res.err, res.stderr)
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
