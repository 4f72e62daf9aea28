// Package metrics exposes Prometheus collectors for tile downloads and
// session logins. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "srtm1dl"

// Tile outcome labels.
const (
	StatusSaved   = "saved"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Login outcome labels.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Metrics holds the collectors registered by New.
type Metrics struct {
	tilesTotal      *prometheus.CounterVec
	downloadedBytes prometheus.Counter
	tileDuration    prometheus.Histogram
	tilesInFlight   prometheus.Gauge
	loginsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tiles_total",
				Help:      "Tile tasks by final outcome.",
			},
			[]string{"status"},
		),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to tile files.",
		}),
		tileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_duration_seconds",
			Help:      "Wall time of a tile task, including redirects and re-logins.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		tilesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tiles_in_flight",
			Help:      "Tile tasks currently running.",
		}),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login handshakes by result.",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.tilesTotal, m.downloadedBytes, m.tileDuration, m.tilesInFlight, m.loginsTotal)
	}
	return m
}

// TileStarted marks a task as running.
func (m *Metrics) TileStarted() {
	if m == nil {
		return
	}
	m.tilesInFlight.Inc()
}

// TileFinished records the outcome of one task.
func (m *Metrics) TileFinished(status string, bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tilesInFlight.Dec()
	m.tilesTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.downloadedBytes.Add(float64(bytes))
	}
	m.tileDuration.Observe(elapsed.Seconds())
}

// Login records one handshake.
func (m *Metrics) Login(err error) {
	if m == nil {
		return
	}
	result := LoginSuccess
	if err != nil {
		result = LoginFailure
	}
	m.loginsTotal.WithLabelValues(result).Inc()
}
