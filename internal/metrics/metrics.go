package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the stream and incident counters.
type Metrics struct {
	// Frame counters
	FramesRead     atomic.Uint64
	FramesDetected atomic.Uint64 // frames passed through the detector
	DetectErrors   atomic.Uint64

	// Incident persistence
	PersistFailures atomic.Uint64
	PersistRetries  atomic.Uint64
	IncidentsLost   atomic.Uint64

	// Stream sessions
	ActiveStreams atomic.Int64
	TotalStreams  atomic.Uint64

	incidents *prometheus.CounterVec
	registry  *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		incidents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_incidents_emitted_total",
				Help: "Incidents emitted by stream aggregators",
			},
			[]string{"severity"},
		),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.incidents)

	counters := []struct {
		name, help string
		value      *atomic.Uint64
	}{
		{"traffic_frames_read_total", "Total frames read from camera feeds", &m.FramesRead},
		{"traffic_frames_detected_total", "Total frames passed through the detector", &m.FramesDetected},
		{"traffic_detect_errors_total", "Total detector errors", &m.DetectErrors},
		{"traffic_incident_persist_failures_total", "Total failed incident store attempts", &m.PersistFailures},
		{"traffic_incident_persist_retries_total", "Total incident store retries", &m.PersistRetries},
		{"traffic_incidents_lost_total", "Incidents dropped after exhausting store retries", &m.IncidentsLost},
		{"traffic_streams_total", "Total stream sessions started", &m.TotalStreams},
	}
	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "traffic_streams_active",
			Help: "Stream sessions currently running",
		},
		func() float64 { return float64(m.ActiveStreams.Load()) },
	))
}

// IncidentEmitted counts one emitted incident of the given severity.
func (m *Metrics) IncidentEmitted(severity string) {
	m.incidents.WithLabelValues(severity).Inc()
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
