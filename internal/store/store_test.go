package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/store"
)

var storeEpoch = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, path string) *store.Store {
	t.Helper()

	s, err := store.New(path)
	if err != nil {
		t.Fatalf("failed to create store: %s", err)
	}
	return s
}

func sensorSample(minute int, status monitor.Status) monitor.Sample {
	return monitor.Sample{
		Source: monitor.SensorSource("lamp"),
		Time:   storeEpoch.Add(time.Duration(minute) * time.Minute),
		Status: status,
	}
}

func fixedGap(d time.Duration) func(monitor.Source) time.Duration {
	return func(monitor.Source) time.Duration { return d }
}

func TestStore_scanFindsFinalState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanwatch.log")

	s := newStore(t, path)
	s.RecordSample(sensorSample(0, monitor.StatusUnreachable))
	s.RecordSample(sensorSample(1, monitor.StatusUnreachable))

	span := &monitor.SourceIncident{
		Source:    monitor.SensorSource("lamp"),
		StartedAt: storeEpoch,
		Severity:  monitor.SeverityOutage,
	}
	s.RecordSourceIncident(span)

	inc := &monitor.Incident{
		ID:        "inc-1",
		Type:      monitor.TypeSensorOutage,
		StartedAt: storeEpoch,
		Affected:  []monitor.Source{span.Source},
	}
	s.RecordIncident(monitor.LifecycleOpened, inc)

	// Close both; the scan must see only the final state of each.
	span.EndedAt = storeEpoch.Add(5 * time.Minute)
	s.RecordSourceIncident(span)
	inc.EndedAt = span.EndedAt
	s.RecordIncident(monitor.LifecycleClosed, inc)

	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}

	snap, err := s.ScanSince(time.Time{})
	if err != nil {
		t.Fatalf("failed to scan: %s", err)
	}

	if len(snap.Samples) != 2 {
		t.Errorf("expected 2 samples but got %d", len(snap.Samples))
	}
	if len(snap.Spans) != 1 {
		t.Fatalf("span written twice should appear once: %+v", snap.Spans)
	}
	if snap.Spans[0].Open() {
		t.Errorf("the span's final state is closed")
	}
	if len(snap.Incidents) != 1 {
		t.Fatalf("incident written twice should appear once: %+v", snap.Incidents)
	}
	if snap.Incidents[0].Open() {
		t.Errorf("the incident's final state is closed")
	}
}

func TestStore_lastSamples(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "lanwatch.log"))
	defer s.Close()

	s.RecordSample(sensorSample(0, monitor.StatusUnreachable))
	s.RecordSample(sensorSample(1, monitor.StatusOK))
	s.RecordSample(monitor.Sample{
		Source: monitor.GatewaySource(),
		Time:   storeEpoch,
		Status: monitor.StatusOK,
	})

	last := s.LastSamples()
	if len(last) != 2 {
		t.Fatalf("expected one entry per source: %+v", last)
	}
	for _, sample := range last {
		if sample.Source == monitor.SensorSource("lamp") && sample.Status != monitor.StatusOK {
			t.Errorf("lamp's newest sample is OK, got %s", sample.Status)
		}
	}
}

func openIncidentLog(t *testing.T, path string, lastSample time.Time) {
	t.Helper()

	s := newStore(t, path)
	s.RecordSample(monitor.Sample{
		Source: monitor.SensorSource("lamp"),
		Time:   lastSample,
		Status: monitor.StatusUnreachable,
	})

	span := &monitor.SourceIncident{
		Source:    monitor.SensorSource("lamp"),
		StartedAt: storeEpoch,
		Severity:  monitor.SeverityOutage,
	}
	s.RecordSourceIncident(span)
	s.RecordIncident(monitor.LifecycleStillOpen, &monitor.Incident{
		ID:           "inc-1",
		Type:         monitor.TypeSensorOutage,
		StartedAt:    storeEpoch,
		Affected:     []monitor.Source{span.Source},
		Contributing: []*monitor.SourceIncident{span},
	})

	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}
}

func TestStore_restoreResumesFreshIncident(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanwatch.log")
	lastSample := storeEpoch.Add(10 * time.Minute)
	openIncidentLog(t, path, lastSample)

	s := newStore(t, path)
	defer s.Close()

	// The monitor was only down for a minute: the incident is resumable.
	resumed, err := s.Restore(lastSample.Add(time.Minute), fixedGap(5*time.Minute))
	if err != nil {
		t.Fatalf("failed to restore: %s", err)
	}
	if len(resumed) != 1 || resumed[0].ID != "inc-1" {
		t.Fatalf("expected inc-1 to resume: %+v", resumed)
	}
	if open := s.OpenIncidents(); len(open) != 1 {
		t.Errorf("resumed incident should be open in the store: %+v", open)
	}
	if got := s.RecentSamples(monitor.SensorSource("lamp")); len(got) != 1 {
		t.Errorf("restore should rebuild recent samples: %+v", got)
	}
}

func TestStore_restoreForceClosesStaleIncident(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanwatch.log")
	lastSample := storeEpoch.Add(10 * time.Minute)
	openIncidentLog(t, path, lastSample)

	s := newStore(t, path)

	// The monitor was down for an hour: nobody knows what happened in
	// between, so the incident closes at the last observation.
	resumed, err := s.Restore(lastSample.Add(time.Hour), fixedGap(5*time.Minute))
	if err != nil {
		t.Fatalf("failed to restore: %s", err)
	}
	if len(resumed) != 0 {
		t.Fatalf("stale incident must not resume: %+v", resumed)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}

	snap, err := s.ScanSince(time.Time{})
	if err != nil {
		t.Fatalf("failed to scan: %s", err)
	}
	if len(snap.Incidents) != 1 {
		t.Fatalf("expected one incident: %+v", snap.Incidents)
	}
	if !snap.Incidents[0].EndedAt.Equal(lastSample) {
		t.Errorf("should close at the last known sample: %s", snap.Incidents[0].EndedAt)
	}
}

func TestStore_trimDropsClosedIncidentHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanwatch.log")

	s := newStore(t, path)
	span := &monitor.SourceIncident{
		Source:    monitor.SensorSource("lamp"),
		StartedAt: storeEpoch,
		Severity:  monitor.SeverityOutage,
	}
	s.RecordSourceIncident(span)
	inc := &monitor.Incident{
		ID:           "ancient",
		Type:         monitor.TypeSensorOutage,
		StartedAt:    storeEpoch,
		Affected:     []monitor.Source{span.Source},
		Contributing: []*monitor.SourceIncident{span},
	}
	s.RecordIncident(monitor.LifecycleOpened, inc)

	span.EndedAt = storeEpoch.Add(10 * time.Minute)
	s.RecordSourceIncident(span)
	inc.EndedAt = span.EndedAt
	s.RecordIncident(monitor.LifecycleClosed, inc)
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}

	// Every record of the incident, the closing ones included, is older
	// than the cutoff. The opened records must not outlive the close, or
	// the incident would come back from the dead as open.
	if err := s.Trim(storeEpoch.Add(24 * time.Hour)); err != nil {
		t.Fatalf("failed to trim: %s", err)
	}

	snap, err := s.ScanSince(time.Time{})
	if err != nil {
		t.Fatalf("failed to scan: %s", err)
	}
	if len(snap.Incidents) != 0 {
		t.Errorf("closed incident should age out entirely: %+v", snap.Incidents)
	}
	if len(snap.Spans) != 0 {
		t.Errorf("closed spans should age out entirely: %+v", snap.Spans)
	}

	// A restart after the trim must not resurrect it either.
	s2 := newStore(t, path)
	defer s2.Close()

	resumed, err := s2.Restore(storeEpoch.Add(25*time.Hour), fixedGap(5*time.Minute))
	if err != nil {
		t.Fatalf("failed to restore: %s", err)
	}
	if len(resumed) != 0 {
		t.Errorf("nothing should resume: %+v", resumed)
	}
	if open := s2.OpenIncidents(); len(open) != 0 {
		t.Errorf("nothing should be open: %+v", open)
	}
}

func TestStore_writeFailureReportsUnhealthy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("failed to make log dir: %s", err)
	}

	s := newStore(t, filepath.Join(dir, "lanwatch.log"))

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("failed to remove log dir: %s", err)
	}

	s.RecordSample(sensorSample(0, monitor.StatusOK))
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}

	healthy, messages := s.Errors()
	if healthy {
		t.Errorf("a failed write should mark the store unhealthy")
	}
	if len(messages) == 0 {
		t.Errorf("the failure should be reported")
	}
}

func TestStore_trim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanwatch.log")

	s := newStore(t, path)
	s.RecordSample(sensorSample(0, monitor.StatusOK))
	s.RecordSample(sensorSample(60, monitor.StatusOK))
	s.RecordIncident(monitor.LifecycleOpened, &monitor.Incident{
		ID:        "old-but-open",
		Type:      monitor.TypeSensorOutage,
		StartedAt: storeEpoch,
	})
	if err := s.Close(); err != nil {
		t.Fatalf("failed to close store: %s", err)
	}

	if err := s.Trim(storeEpoch.Add(30 * time.Minute)); err != nil {
		t.Fatalf("failed to trim: %s", err)
	}

	snap, err := s.ScanSince(time.Time{})
	if err != nil {
		t.Fatalf("failed to scan: %s", err)
	}
	if len(snap.Samples) != 1 {
		t.Errorf("old sample should be gone: %+v", snap.Samples)
	}
	if len(snap.Incidents) != 1 {
		t.Errorf("open incident must survive the trim: %+v", snap.Incidents)
	}
}
