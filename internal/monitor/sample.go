package monitor

import (
	"time"
)

// Sample is one observation of one source at one instant.
//
// Metrics carries source specific numbers (rssi, loss, rtt_avg, ...) that
// only the source's own thresholding logic interprets; the correlator
// never looks inside.
type Sample struct {
	Source  Source             `json:"source"`
	Time    time.Time          `json:"time"`
	Status  Status             `json:"status"`
	Latency time.Duration      `json:"latency,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Message string             `json:"message,omitempty"`
}

// Metric returns a named metric value, or the fallback if it is absent.
func (s Sample) Metric(name string, fallback float64) float64 {
	if v, ok := s.Metrics[name]; ok {
		return v
	}
	return fallback
}
