package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/store"
)

// WiFiStats summarizes the radio link over the report window.
type WiFiStats struct {
	Checks         int
	UptimePercent  float64
	Disconnections int
	DisconnectRate float64

	HasRSSI   bool
	AvgRSSI   float64
	MinRSSI   float64
	RSSIStdev float64

	// WeakHours are the hours of day whose average RSSI falls below the
	// weak-signal line.
	WeakHours []int

	Grade   string
	Rating  string
	Quality string
}

// PathStats summarizes one ping path (gateway or internet).
type PathStats struct {
	Checks         int
	FailurePercent float64
	AvgLossPercent float64
	AvgLatencyMS   float64
}

// SensorStats summarizes one sensor's reliability.
type SensorStats struct {
	Name                string
	Address             string
	Checks              int
	Failures            int
	AvailabilityPercent float64
	AvgLatencyMS        float64
	Status              string

	// CorrelatedFailures counts the failures that happened while the
	// wifi link itself was down, so they are not the sensor's fault.
	CorrelatedFailures int
}

// IncidentSummary is one incident prepared for rendering.
type IncidentSummary struct {
	Incident monitor.Incident
	Duration time.Duration
	Severity monitor.Severity
}

// Analysis is everything the report template needs, computed once from a
// log snapshot.
type Analysis struct {
	Start       time.Time
	End         time.Time
	GeneratedAt time.Time

	WiFi     WiFiStats
	Gateway  PathStats
	Internet PathStats
	Sensors  []SensorStats

	Incidents     []IncidentSummary
	ByType        map[monitor.IncidentType]int
	TotalDowntime time.Duration
	MTBF          time.Duration

	// MostAffected is the source that spent the most time abnormal over
	// the window, measured on its own spans.
	MostAffected         string
	MostAffectedDowntime time.Duration

	// ProblemHours are the hours of day with clearly more incidents
	// than the rest.
	ProblemHours []int

	Recommendations []string
}

// Analyze computes the report statistics for one window.
func Analyze(snap store.Snapshot, cfg config.Config, start, end time.Time) *Analysis {
	a := &Analysis{
		Start:       start,
		End:         end,
		GeneratedAt: time.Now(),
		ByType:      make(map[monitor.IncidentType]int),
	}

	bySource := make(map[monitor.Source][]monitor.Sample)
	for _, s := range snap.Samples {
		bySource[s.Source] = append(bySource[s.Source], s)
	}

	wifiSamples := bySource[monitor.WiFiSource()]
	a.WiFi = analyzeWiFi(wifiSamples)
	a.Gateway = analyzePath(bySource[monitor.GatewaySource()])
	a.Internet = analyzePath(bySource[monitor.InternetSource()])

	for _, sensor := range cfg.Sensors {
		a.Sensors = append(a.Sensors,
			analyzeSensor(sensor, bySource[monitor.SensorSource(sensor.Name)], wifiSamples))
	}

	a.analyzeIncidents(snap.Incidents, end)
	a.MostAffected, a.MostAffectedDowntime = mostAffected(snap.Spans, end)
	a.Recommendations = a.recommend()

	return a
}

func connected(s monitor.Sample) bool {
	return s.Status == monitor.StatusOK || s.Status == monitor.StatusDegraded
}

func analyzeWiFi(samples []monitor.Sample) WiFiStats {
	stats := WiFiStats{MinRSSI: math.Inf(1)}

	var rssi []float64
	for _, s := range samples {
		if s.Status == monitor.StatusUnknown {
			continue
		}
		stats.Checks++
		if !connected(s) {
			stats.Disconnections++
			continue
		}
		if v, ok := s.Metrics["rssi"]; ok {
			rssi = append(rssi, v)
			if v < stats.MinRSSI {
				stats.MinRSSI = v
			}
		}
	}

	if stats.Checks > 0 {
		stats.UptimePercent = float64(stats.Checks-stats.Disconnections) / float64(stats.Checks) * 100
		stats.DisconnectRate = float64(stats.Disconnections) / float64(stats.Checks) * 100
	}

	if len(rssi) > 0 {
		stats.HasRSSI = true
		stats.AvgRSSI = mean(rssi)
		stats.RSSIStdev = stdev(rssi)
		stats.Quality = rssiQuality(stats.AvgRSSI)
		stats.WeakHours = weakRSSIHours(samples)
	} else {
		stats.MinRSSI = 0
	}

	stats.Grade, stats.Rating = wifiGrade(stats.UptimePercent, stats.AvgRSSI)
	return stats
}

func analyzePath(samples []monitor.Sample) PathStats {
	var stats PathStats
	var loss, latency []float64

	failed := 0
	for _, s := range samples {
		if s.Status == monitor.StatusUnknown {
			continue
		}
		stats.Checks++
		if s.Status == monitor.StatusUnreachable {
			failed++
		}
		loss = append(loss, s.Metric("loss", 0)*100)
		if v, ok := s.Metrics["rtt_avg"]; ok {
			latency = append(latency, v)
		}
	}

	if stats.Checks > 0 {
		stats.FailurePercent = float64(failed) / float64(stats.Checks) * 100
	}
	if len(loss) > 0 {
		stats.AvgLossPercent = mean(loss)
	}
	if len(latency) > 0 {
		stats.AvgLatencyMS = mean(latency)
	}
	return stats
}

func analyzeSensor(cfg config.SensorConfig, samples, wifiSamples []monitor.Sample) SensorStats {
	stats := SensorStats{Name: cfg.Name, Address: cfg.Address}

	var wifiDown []time.Time
	for _, w := range wifiSamples {
		if w.Status == monitor.StatusUnreachable {
			wifiDown = append(wifiDown, w.Time)
		}
	}

	var latency []float64
	for _, s := range samples {
		if s.Status == monitor.StatusUnknown {
			continue
		}
		stats.Checks++
		if connected(s) {
			if v, ok := s.Metrics["rtt_avg"]; ok {
				latency = append(latency, v)
			}
			continue
		}

		stats.Failures++
		for _, down := range wifiDown {
			if absDuration(s.Time.Sub(down)) < time.Minute {
				stats.CorrelatedFailures++
				break
			}
		}
	}

	if stats.Checks > 0 {
		stats.AvailabilityPercent = float64(stats.Checks-stats.Failures) / float64(stats.Checks) * 100
	}
	if len(latency) > 0 {
		stats.AvgLatencyMS = mean(latency)
	}

	switch {
	case stats.AvailabilityPercent >= 99:
		stats.Status = "Excellent"
	case stats.AvailabilityPercent >= 95:
		stats.Status = "Good"
	case stats.AvailabilityPercent >= 90:
		stats.Status = "Fair"
	default:
		stats.Status = "Poor"
	}
	return stats
}

func (a *Analysis) analyzeIncidents(incidents []monitor.Incident, end time.Time) {
	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].StartedAt.Before(incidents[j].StartedAt)
	})

	hourly := make(map[int]int)
	for _, inc := range incidents {
		endedAt := inc.EndedAt
		if endedAt.IsZero() {
			endedAt = end
		}
		duration := endedAt.Sub(inc.StartedAt)

		a.Incidents = append(a.Incidents, IncidentSummary{
			Incident: inc,
			Duration: duration,
			Severity: worstSeverity(inc),
		})
		a.ByType[inc.Type]++
		a.TotalDowntime += duration
		hourly[inc.StartedAt.Hour()]++
	}

	if n := len(a.Incidents); n > 0 {
		a.MTBF = a.End.Sub(a.Start) / time.Duration(n)
	}

	a.ProblemHours = problemHours(hourly)
}

// mostAffected finds the source with the most time inside abnormal
// spans. Spans attribute downtime to the exact source; incident
// membership would blame every absorbed source for the whole incident.
func mostAffected(spans []monitor.SourceIncident, end time.Time) (string, time.Duration) {
	downtime := make(map[string]time.Duration)
	for _, span := range spans {
		endedAt := span.EndedAt
		if endedAt.IsZero() {
			endedAt = end
		}
		downtime[span.Source.String()] += endedAt.Sub(span.StartedAt)
	}

	var source string
	var most time.Duration
	for src, d := range downtime {
		if d > most || (d == most && source != "" && src < source) {
			source = src
			most = d
		}
	}
	return source, most
}

func worstSeverity(inc monitor.Incident) monitor.Severity {
	worst := monitor.SeverityDegraded
	for _, si := range inc.Contributing {
		if si.Severity == monitor.SeverityOutage {
			worst = monitor.SeverityOutage
			break
		}
	}
	if len(inc.Contributing) == 0 && inc.Type != monitor.TypeWiFiDegradation {
		worst = monitor.SeverityOutage
	}
	return worst
}

// problemHours finds the hours of day with more incidents than the mean
// plus one standard deviation.
func problemHours(hourly map[int]int) []int {
	if len(hourly) <= 3 {
		return nil
	}

	counts := make([]float64, 0, len(hourly))
	for _, c := range hourly {
		counts = append(counts, float64(c))
	}
	limit := mean(counts) + stdev(counts)

	var hours []int
	for hour, count := range hourly {
		if float64(count) > limit {
			hours = append(hours, hour)
		}
	}
	sort.Ints(hours)
	return hours
}

// weakRSSIHours finds the hours of day whose average signal is below the
// weak line, hinting at time-based interference.
func weakRSSIHours(samples []monitor.Sample) []int {
	hourly := make(map[int][]float64)
	for _, s := range samples {
		if v, ok := s.Metrics["rssi"]; ok {
			hourly[s.Time.Hour()] = append(hourly[s.Time.Hour()], v)
		}
	}

	var hours []int
	for hour, values := range hourly {
		if mean(values) < -75 {
			hours = append(hours, hour)
		}
	}

	// All day weak is a placement problem, not a time pattern.
	if len(hours) == 0 || len(hours) >= 12 {
		return nil
	}
	sort.Ints(hours)
	return hours
}

func wifiGrade(uptime, avgRSSI float64) (grade, rating string) {
	rssiScore := math.Max(0, math.Min(100, (avgRSSI+90)*2))
	score := uptime*0.7 + rssiScore*0.3

	switch {
	case score >= 95:
		return "A", "Excellent"
	case score >= 85:
		return "B", "Good"
	case score >= 75:
		return "C", "Fair"
	case score >= 65:
		return "D", "Poor"
	default:
		return "F", "Very Poor"
	}
}

func rssiQuality(rssi float64) string {
	switch {
	case rssi >= -50:
		return "Excellent"
	case rssi >= -60:
		return "Good"
	case rssi >= -70:
		return "Fair"
	case rssi >= -80:
		return "Weak"
	default:
		return "Very Weak"
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func formatHours(hours []int) string {
	out := ""
	for i, h := range hours {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%02d:00", h)
	}
	return out
}
