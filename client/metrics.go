package client

import "github.com/prometheus/client_golang/prometheus"

// Refresh outcomes recorded by Metrics.
const (
	refreshSuccess = "success"
	refreshFailure = "failure"
	refreshEmpty   = "empty"
)

// Metrics counts client traffic and the refresh-and-retry path.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	retries   prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg.
// A nil reg leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occasio",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "HTTP requests sent, by method and status code.",
		}, []string{"method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "occasio",
			Subsystem: "client",
			Name:      "refresh_attempts_total",
			Help:      "Token refreshes triggered by 401 responses, by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "occasio",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Requests re-sent after a successful refresh.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.refreshes, m.retries)
	}
	return m
}

func (m *Metrics) observeRequest(method, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
