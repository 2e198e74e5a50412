package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionSource reports the current session state at scrape time.
type SessionSource interface {
	// SessionStatus returns whether the session is valid and the seconds
	// left until it expires (zero when invalid).
	SessionStatus() (valid bool, remainingSeconds float64)
}

// SessionSourceFunc adapts a function to SessionSource.
type SessionSourceFunc func() (bool, float64)

// SessionStatus implements SessionSource.
func (f SessionSourceFunc) SessionStatus() (bool, float64) {
	return f()
}

// SessionCollector evaluates session validity on every scrape instead of
// caching it, so an expiry between two writes is still reported.
type SessionCollector struct {
	src       SessionSource
	valid     *prometheus.Desc
	remaining *prometheus.Desc
}

// NewSessionCollector creates a collector for src.
func NewSessionCollector(src SessionSource) *SessionCollector {
	return &SessionCollector{
		src: src,
		valid: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_valid"),
			"1 if the stored session is valid, 0 otherwise.",
			nil, nil,
		),
		remaining: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "remaining_seconds"),
			"Seconds until the stored session expires.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.valid
	ch <- c.remaining
}

// Collect implements prometheus.Collector.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	valid, remaining := c.src.SessionStatus()
	v := 0.0
	if valid {
		v = 1
	}
	ch <- prometheus.MustNewConstMetric(c.valid, prometheus.GaugeValue, v)
	ch <- prometheus.MustNewConstMetric(c.remaining, prometheus.GaugeValue, remaining)
}
