package gateway

import (
	"strconv"

	"github.com/livecap/livecap/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the gateway's Prometheus collectors on a private registry
// so tests can run gateways side by side.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	captionsSent       prometheus.Counter
	captionsFailed     prometheus.Counter
	sessionsRegistered prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livecap",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "code"}),
		captionsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livecap",
			Name:      "captions_sent_total",
			Help:      "Captions delivered upstream.",
		}),
		captionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livecap",
			Name:      "captions_failed_total",
			Help:      "Captions the upstream rejected or that failed in transit.",
		}),
		sessionsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livecap",
			Name:      "sessions_registered_total",
			Help:      "Sessions registered since start.",
		}),
	}

	m.registry.MustRegister(m.requestsTotal, m.captionsSent, m.captionsFailed, m.sessionsRegistered)
	return m
}

// trackSessions registers a gauge reading the live session count.
func (m *metrics) trackSessions(store *session.Store) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "livecap",
		Name:      "active_sessions",
		Help:      "Sessions currently held in the store.",
	}, func() float64 {
		return float64(store.Size())
	}))
}

func (m *metrics) observeRequest(method, route string, status int) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
