package metric

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmsocial/mmclient/internal/core/domain"
)

const namespace = "mm"

// Login outcomes used as the "outcome" label.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeServerFailure      = "server_failure"
	OutcomeTransportFailure   = "transport_failure"
	OutcomeRateLimited        = "rate_limited"
	OutcomeInFlight           = "in_flight"
	OutcomeError              = "error"
)

// Presence event kinds used as the "kind" label.
const (
	KindOnline         = "online"
	KindOffline        = "offline"
	KindMalformed      = "malformed"
	KindConnectionLost = "connection_lost"
)

// Registry holds all client metrics.
type Registry struct {
	registry *prometheus.Registry

	LoginAttempts           *prometheus.CounterVec
	PresenceEvents          *prometheus.CounterVec
	PresenceConnectionState prometheus.Gauge
}

// NewRegistry creates a registry with the client metrics and the Go
// runtime collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		PresenceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_events_total",
			Help:      "Inbound presence frames by kind.",
		}, []string{"kind"}),
		PresenceConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_connection_state",
			Help:      "Presence connection state: 0 disconnected, 1 connecting, 2 open.",
		}),
	}

	r.registry.MustRegister(
		r.LoginAttempts,
		r.PresenceEvents,
		r.PresenceConnectionState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Registerer exposes the underlying registry for components that own
// their own collectors (e.g. the storage engine).
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the /metrics handler for r.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Handler returns the /metrics handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// ObserveLogin counts one login attempt, classified by its error.
func (r *Registry) ObserveLogin(err error) {
	if r == nil {
		return
	}
	r.LoginAttempts.WithLabelValues(LoginOutcome(err)).Inc()
}

// ObservePresence counts one presence event of the given kind.
func (r *Registry) ObservePresence(kind string) {
	if r == nil {
		return
	}
	r.PresenceEvents.WithLabelValues(kind).Inc()
}

// SetPresenceState records the presence connection state.
func (r *Registry) SetPresenceState(state int) {
	if r == nil {
		return
	}
	r.PresenceConnectionState.Set(float64(state))
}

// WatchSession registers a SessionCollector backed by src.
func (r *Registry) WatchSession(src SessionSource) error {
	if r == nil {
		return nil
	}
	err := r.registry.Register(NewSessionCollector(src))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// LoginOutcome maps a login error to its outcome label.
func LoginOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, domain.ErrServerFailure):
		return OutcomeServerFailure
	case errors.Is(err, domain.ErrTransportFailure):
		return OutcomeTransportFailure
	case errors.Is(err, domain.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, domain.ErrLoginInFlight):
		return OutcomeInFlight
	default:
		return OutcomeError
	}
}
