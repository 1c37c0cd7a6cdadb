package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/report"
	"github.com/lanwatch/lanwatch/internal/store"
	"github.com/lanwatch/lanwatch/internal/testutil"
)

var reportEpoch = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

func reportConfig() config.Config {
	cfg := config.Default()
	cfg.Sensors = []config.SensorConfig{
		{Name: "lamp", Address: "192.0.2.10", Probe: "ping"},
	}
	return cfg
}

func wifiSample(minute int, status monitor.Status, rssi float64) monitor.Sample {
	return monitor.Sample{
		Source:  monitor.WiFiSource(),
		Time:    reportEpoch.Add(time.Duration(minute) * time.Minute),
		Status:  status,
		Metrics: map[string]float64{"rssi": rssi},
	}
}

func TestAnalyze_wifiStats(t *testing.T) {
	snap := store.Snapshot{
		Samples: []monitor.Sample{
			wifiSample(0, monitor.StatusOK, -50),
			wifiSample(1, monitor.StatusOK, -54),
			wifiSample(2, monitor.StatusOK, -52),
			{Source: monitor.WiFiSource(), Time: reportEpoch.Add(3 * time.Minute), Status: monitor.StatusUnreachable},
		},
	}

	a := report.Analyze(snap, reportConfig(), reportEpoch, reportEpoch.Add(time.Hour))

	if a.WiFi.Checks != 4 {
		t.Errorf("expected 4 checks but got %d", a.WiFi.Checks)
	}
	if a.WiFi.UptimePercent != 75 {
		t.Errorf("expected 75%% uptime but got %f", a.WiFi.UptimePercent)
	}
	if a.WiFi.AvgRSSI != -52 {
		t.Errorf("unexpected average rssi: %f", a.WiFi.AvgRSSI)
	}
	if a.WiFi.Quality != "Good" {
		t.Errorf("-52 dBm is Good, got %s", a.WiFi.Quality)
	}
	if a.WiFi.Disconnections != 1 {
		t.Errorf("expected 1 disconnection but got %d", a.WiFi.Disconnections)
	}
}

func TestAnalyze_incidentRollup(t *testing.T) {
	snap := store.Snapshot{
		Spans: []monitor.SourceIncident{
			{
				Source:    monitor.SensorSource("lamp"),
				StartedAt: reportEpoch.Add(10 * time.Minute),
				EndedAt:   reportEpoch.Add(15 * time.Minute),
				Severity:  monitor.SeverityOutage,
			},
			{
				Source:    monitor.WiFiSource(),
				StartedAt: reportEpoch.Add(30 * time.Minute),
				Severity:  monitor.SeverityOutage,
			},
		},
		Incidents: []monitor.Incident{
			{
				ID:        "a",
				Type:      monitor.TypeSensorOutage,
				StartedAt: reportEpoch.Add(10 * time.Minute),
				EndedAt:   reportEpoch.Add(15 * time.Minute),
				Affected:  []monitor.Source{monitor.SensorSource("lamp")},
			},
			{
				ID:        "b",
				Type:      monitor.TypeWiFiOutage,
				StartedAt: reportEpoch.Add(30 * time.Minute),
				// still open: counts until the end of the window
				Affected: []monitor.Source{monitor.WiFiSource(), monitor.SensorSource("lamp")},
			},
		},
	}

	end := reportEpoch.Add(time.Hour)
	a := report.Analyze(snap, reportConfig(), reportEpoch, end)

	if len(a.Incidents) != 2 {
		t.Fatalf("expected 2 incidents but got %d", len(a.Incidents))
	}
	if want := 5*time.Minute + 30*time.Minute; a.TotalDowntime != want {
		t.Errorf("expected %s downtime but got %s", want, a.TotalDowntime)
	}
	if a.ByType[monitor.TypeWiFiOutage] != 1 || a.ByType[monitor.TypeSensorOutage] != 1 {
		t.Errorf("unexpected type rollup: %v", a.ByType)
	}
	if a.MTBF != 30*time.Minute {
		t.Errorf("unexpected MTBF: %s", a.MTBF)
	}
	// The lamp rode under the wifi incident, but its own span was short:
	// downtime is attributed per span, not per incident membership.
	if a.MostAffected != "wifi" || a.MostAffectedDowntime != 30*time.Minute {
		t.Errorf("unexpected most affected source: %s (%s)", a.MostAffected, a.MostAffectedDowntime)
	}
}

func TestAnalyze_recommendations(t *testing.T) {
	var samples []monitor.Sample
	for i := 0; i < 20; i++ {
		samples = append(samples, wifiSample(i, monitor.StatusOK, -80))
	}

	snap := store.Snapshot{Samples: samples}
	a := report.Analyze(snap, reportConfig(), reportEpoch, reportEpoch.Add(time.Hour))

	found := false
	for _, rec := range a.Recommendations {
		if strings.Contains(rec, "WiFi signal is weak") {
			found = true
		}
	}
	if !found {
		t.Errorf("a weak signal should be flagged: %v", a.Recommendations)
	}
}

func TestAnalyze_quietNetworkHasNoComplaints(t *testing.T) {
	snap := store.Snapshot{
		Samples: []monitor.Sample{
			wifiSample(0, monitor.StatusOK, -50),
			wifiSample(1, monitor.StatusOK, -51),
		},
	}
	a := report.Analyze(snap, reportConfig(), reportEpoch, reportEpoch.Add(time.Hour))

	if len(a.Recommendations) != 1 || !strings.Contains(a.Recommendations[0], "No major issues") {
		t.Errorf("a healthy network gets the all-clear: %v", a.Recommendations)
	}
}

func TestRender(t *testing.T) {
	snap := store.Snapshot{
		Samples: []monitor.Sample{
			wifiSample(0, monitor.StatusOK, -50),
		},
		Incidents: []monitor.Incident{
			{
				ID:        "a",
				Type:      monitor.TypeInternetOutage,
				StartedAt: reportEpoch.Add(10 * time.Minute),
				EndedAt:   reportEpoch.Add(12 * time.Minute),
				Affected:  []monitor.Source{monitor.InternetSource()},
			},
		},
	}
	a := report.Analyze(snap, reportConfig(), reportEpoch, reportEpoch.Add(time.Hour))

	var buf bytes.Buffer
	if err := report.Render(&buf, a); err != nil {
		t.Fatalf("failed to render: %s", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Network Health Report",
		"internet_outage",
		"lasting 2m 0s",
		"| lamp |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report should contain %q:\n%s", want, out)
		}
	}
}

func TestGenerator(t *testing.T) {
	dir := t.TempDir()

	s, err := store.New(filepath.Join(dir, "lanwatch.log"))
	if err != nil {
		t.Fatalf("failed to create store: %s", err)
	}
	s.RecordSample(wifiSample(0, monitor.StatusOK, -48))
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}

	cfg := reportConfig()
	cfg.Report.OutputDir = filepath.Join(dir, "reports")

	g := report.NewGenerator(s, cfg, testutil.Logger(t))
	path, err := g.Generate(reportEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to generate: %s", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %s", err)
	}
	if !strings.Contains(string(data), "# Network Health Report") {
		t.Errorf("unexpected report content:\n%s", data)
	}
}
