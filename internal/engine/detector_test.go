package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/engine"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/testutil"
)

func detectorConfig() config.Config {
	cfg := config.Default()
	cfg.Sensors = []config.SensorConfig{
		{Name: "lamp", Address: "192.0.2.10", Probe: "ping"},
	}
	return cfg
}

// feed runs the detector, pushes the samples through it one by one, and
// shuts it down cleanly.
func feed(t *testing.T, d *engine.Detector, samples ...monitor.Sample) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan monitor.Sample)
	done := make(chan struct{})

	go func() {
		defer close(done)
		d.Run(ctx, ch)
	}()

	for _, s := range samples {
		ch <- s
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("detector did not stop")
	}
}

func TestDetector_sensorOutageLifecycle(t *testing.T) {
	store := testutil.NewMemoryStore()
	d := engine.NewDetector(detectorConfig(), store, testutil.Logger(t))

	src := monitor.SensorSource("lamp")
	feed(t, d,
		sampleAt(src, 0, monitor.StatusUnreachable),
		sampleAt(src, 1, monitor.StatusUnreachable),
		sampleAt(src, 2, monitor.StatusUnreachable),
		sampleAt(src, 3, monitor.StatusOK),
		sampleAt(src, 4, monitor.StatusOK),
	)

	records := store.Incidents()
	if len(records) != 2 {
		t.Fatalf("expected opened and closed but got %+v", records)
	}

	opened := records[0]
	if opened.Lifecycle != monitor.LifecycleOpened || opened.Incident.Type != monitor.TypeSensorOutage {
		t.Fatalf("unexpected first record: %+v", opened)
	}
	if !opened.Incident.StartedAt.Equal(trackerEpoch) {
		t.Errorf("incident should backdate to the first bad sample: %s", opened.Incident.StartedAt)
	}

	closed := records[1]
	if closed.Lifecycle != monitor.LifecycleClosed {
		t.Fatalf("unexpected second record: %+v", closed)
	}
	if !closed.Incident.EndedAt.Equal(at(3)) {
		t.Errorf("incident should close at the first good sample: %s", closed.Incident.EndedAt)
	}

	if got := len(store.Samples()); got != 5 {
		t.Errorf("every sample should be recorded, got %d", got)
	}
	if len(d.OpenIncidents()) != 0 {
		t.Errorf("nothing should stay open")
	}
}

func TestDetector_gatewayFailureIsWiFiOutage(t *testing.T) {
	store := testutil.NewMemoryStore()
	d := engine.NewDetector(detectorConfig(), store, testutil.Logger(t))

	gw := monitor.GatewaySource()
	feed(t, d,
		sampleAt(monitor.WiFiSource(), 0, monitor.StatusOK),
		sampleAt(gw, 0, monitor.StatusUnreachable),
		sampleAt(gw, 1, monitor.StatusUnreachable),
		sampleAt(gw, 2, monitor.StatusUnreachable),
	)

	records := store.Incidents()
	if len(records) != 1 {
		t.Fatalf("expected one opened incident but got %+v", records)
	}
	if records[0].Incident.Type != monitor.TypeWiFiOutage {
		t.Errorf("an unreachable gateway is a wifi layer problem: %s", records[0].Incident.Type)
	}
}

func TestDetector_flushOnShutdown(t *testing.T) {
	store := testutil.NewMemoryStore()
	d := engine.NewDetector(detectorConfig(), store, testutil.Logger(t))

	src := monitor.SensorSource("lamp")
	feed(t, d,
		sampleAt(src, 0, monitor.StatusUnreachable),
		sampleAt(src, 1, monitor.StatusUnreachable),
		sampleAt(src, 2, monitor.StatusUnreachable),
	)

	records := store.Incidents()
	if len(records) != 2 {
		t.Fatalf("expected opened plus still_open but got %+v", records)
	}
	if records[1].Lifecycle != monitor.LifecycleStillOpen {
		t.Errorf("shutdown should flush the open incident: %s", records[1].Lifecycle)
	}
	if records[1].Incident.ID != records[0].Incident.ID {
		t.Errorf("the flushed incident should be the opened one")
	}
}

func TestDetector_adoptResumesIncident(t *testing.T) {
	store := testutil.NewMemoryStore()
	d := engine.NewDetector(detectorConfig(), store, testutil.Logger(t))

	src := monitor.SensorSource("lamp")
	span := &monitor.SourceIncident{
		Source:    src,
		StartedAt: trackerEpoch.Add(-time.Hour),
		Severity:  monitor.SeverityOutage,
	}
	d.Adopt([]*monitor.Incident{{
		ID:           "carried-over",
		Type:         monitor.TypeSensorOutage,
		StartedAt:    span.StartedAt,
		Affected:     []monitor.Source{src},
		Contributing: []*monitor.SourceIncident{span},
	}})

	if open := d.OpenIncidents(); len(open) != 1 || open[0].ID != "carried-over" {
		t.Fatalf("adopted incident should be open: %+v", open)
	}

	feed(t, d,
		sampleAt(src, 0, monitor.StatusOK),
		sampleAt(src, 1, monitor.StatusOK),
	)

	records := store.Incidents()
	if len(records) != 1 || records[0].Lifecycle != monitor.LifecycleClosed {
		t.Fatalf("adopted incident should close on recovery: %+v", records)
	}
	if records[0].Incident.ID != "carried-over" {
		t.Errorf("identity should survive the restart")
	}
	if !records[0].Incident.EndedAt.Equal(trackerEpoch) {
		t.Errorf("should close at the first good sample: %s", records[0].Incident.EndedAt)
	}
}

func TestDetector_ignoresUnconfiguredSource(t *testing.T) {
	store := testutil.NewMemoryStore()
	d := engine.NewDetector(detectorConfig(), store, testutil.Logger(t))

	src := monitor.SensorSource("ghost")
	feed(t, d,
		sampleAt(src, 0, monitor.StatusUnreachable),
		sampleAt(src, 1, monitor.StatusUnreachable),
		sampleAt(src, 2, monitor.StatusUnreachable),
	)

	if records := store.Incidents(); len(records) != 0 {
		t.Errorf("unknown sources must not open incidents: %+v", records)
	}
	if got := len(store.Samples()); got != 3 {
		t.Errorf("the raw samples are still recorded, got %d", got)
	}
}
