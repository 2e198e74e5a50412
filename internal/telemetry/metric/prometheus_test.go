package metric

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mmsocial/mmclient/internal/core/domain"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func expectLine(t *testing.T, body, line string) {
	t.Helper()
	if !strings.Contains(body, line+"\n") {
		t.Errorf("metrics output missing %q", line)
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestLoginOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeSuccess},
		{domain.ErrInvalidCredentials.WithStatus(401), OutcomeInvalidCredentials},
		{fmt.Errorf("login: %w", domain.ErrServerFailure), OutcomeServerFailure},
		{domain.ErrTransportFailure, OutcomeTransportFailure},
		{domain.ErrRateLimited, OutcomeRateLimited},
		{domain.ErrLoginInFlight, OutcomeInFlight},
		{fmt.Errorf("disk full"), OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := LoginOutcome(tt.err); got != tt.want {
				t.Errorf("LoginOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserveLogin(t *testing.T) {
	r := NewRegistry()

	r.ObserveLogin(nil)
	r.ObserveLogin(domain.ErrInvalidCredentials)
	r.ObserveLogin(domain.ErrInvalidCredentials)

	body := scrape(t, r)
	expectLine(t, body, `mm_login_attempts_total{outcome="success"} 1`)
	expectLine(t, body, `mm_login_attempts_total{outcome="invalid_credentials"} 2`)
}

func TestPresenceMetrics(t *testing.T) {
	r := NewRegistry()

	r.ObservePresence(KindOnline)
	r.ObservePresence(KindMalformed)
	r.SetPresenceState(2)

	body := scrape(t, r)
	expectLine(t, body, `mm_presence_events_total{kind="online"} 1`)
	expectLine(t, body, `mm_presence_events_total{kind="malformed"} 1`)
	expectLine(t, body, `mm_presence_connection_state 2`)
}

func TestNilRegistry(t *testing.T) {
	var r *Registry

	r.ObserveLogin(nil)
	r.ObservePresence(KindOnline)
	r.SetPresenceState(1)
	if err := r.WatchSession(SessionSourceFunc(func() (bool, float64) { return true, 1 })); err != nil {
		t.Errorf("WatchSession() on nil registry error = %v", err)
	}
	if r.Registerer() == nil {
		t.Error("Registerer() on nil registry should not return nil")
	}
}

func TestSessionCollector(t *testing.T) {
	r := NewRegistry()

	valid := true
	src := SessionSourceFunc(func() (bool, float64) {
		if valid {
			return true, 42
		}
		return false, 0
	})
	if err := r.WatchSession(src); err != nil {
		t.Fatal(err)
	}

	body := scrape(t, r)
	expectLine(t, body, "mm_session_valid 1")
	expectLine(t, body, "mm_session_remaining_seconds 42")

	valid = false
	body = scrape(t, r)
	expectLine(t, body, "mm_session_valid 0")
	expectLine(t, body, "mm_session_remaining_seconds 0")

	if err := r.WatchSession(src); err != nil {
		t.Errorf("second WatchSession() error = %v", err)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveLogin(nil)

	body := scrape(t, r)
	expectLine(t, body, `mm_login_attempts_total{outcome="success"} 1`)
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output should include Go runtime collectors")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.ObservePresence(KindOffline)
			}
		}()
	}
	wg.Wait()

	expectLine(t, scrape(t, r), `mm_presence_events_total{kind="offline"} 1000`)
}
