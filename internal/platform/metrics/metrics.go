package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the ad monitor.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       *prometheus.CounterVec
	heartbeatsTotal     prometheus.Counter
	playbacksTotal      *prometheus.CounterVec
	ingestRejectedTotal *prometheus.CounterVec
	onlineScreens       prometheus.Gauge
	errorsTotal         prometheus.Counter
}

// New creates and registers Prometheus metrics for the monitor.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admon_requests_total",
		Help: "Total number of HTTP requests by method, route pattern and status class",
	}, []string{"method", "route", "code"})
	heartbeatsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admon_heartbeats_ingested_total",
		Help: "Total number of heartbeats accepted",
	})
	playbacksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admon_playbacks_ingested_total",
		Help: "Total number of playback events accepted, by reported status",
	}, []string{"status"})
	ingestRejectedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admon_ingest_rejected_total",
		Help: "Total number of rejected heartbeats and playback events",
	}, []string{"kind", "reason"})
	onlineScreens := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "admon_online_screens",
		Help: "Number of screens whose cached last heartbeat is within the online threshold",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admon_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		heartbeatsTotal,
		playbacksTotal,
		ingestRejectedTotal,
		onlineScreens,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		heartbeatsTotal:     heartbeatsTotal,
		playbacksTotal:      playbacksTotal,
		ingestRejectedTotal: ingestRejectedTotal,
		onlineScreens:       onlineScreens,
		errorsTotal:         errorsTotal,
	}
}

// ObserveRequest counts one request and, for 4xx/5xx, one error.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.requestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	if status >= 400 {
		m.errorsTotal.Inc()
	}
}

// IncHeartbeats increments the accepted heartbeat counter.
func (m *Metrics) IncHeartbeats() {
	m.heartbeatsTotal.Inc()
}

// IncPlaybacks increments the accepted playback counter for status.
// Statuses outside the known set share the "other" label.
func (m *Metrics) IncPlaybacks(status string) {
	m.playbacksTotal.WithLabelValues(playbackStatusLabel(status)).Inc()
}

// IncRejected increments the rejection counter for an ingest kind
// ("heartbeat" or "playback") and reason.
func (m *Metrics) IncRejected(kind, reason string) {
	m.ingestRejectedTotal.WithLabelValues(kind, reason).Inc()
}

// SetOnlineScreens sets the online screens gauge.
func (m *Metrics) SetOnlineScreens(n int) {
	m.onlineScreens.Set(float64(n))
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. online screens).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// playbackStatusLabel bounds the label cardinality of client-supplied statuses.
func playbackStatusLabel(status string) string {
	switch status {
	case "success", "error", "skipped":
		return status
	default:
		return "other"
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
