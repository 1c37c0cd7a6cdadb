package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanwatch",
			Name:      "samples_total",
			Help:      "Probe samples processed, partitioned by source kind and status.",
		},
		[]string{"kind", "status"},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lanwatch",
			Name:      "incidents_total",
			Help:      "Incidents opened, partitioned by classification.",
		},
		[]string{"type"},
	)

	probeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lanwatch",
			Name:      "probe_duration_seconds",
			Help:      "Probe invocation latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)
)

// Register attaches lanwatch collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		samplesTotal,
		incidentsTotal,
		probeDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSample counts one processed sample.
func ObserveSample(kind monitor.Kind, status monitor.Status) {
	samplesTotal.WithLabelValues(string(kind), status.String()).Inc()
}

// ObserveProbe records one probe invocation's duration.
func ObserveProbe(kind monitor.Kind, duration time.Duration) {
	probeDurationSeconds.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// CountIncident counts one opened incident.
func CountIncident(t monitor.IncidentType) {
	incidentsTotal.WithLabelValues(string(t)).Inc()
}
