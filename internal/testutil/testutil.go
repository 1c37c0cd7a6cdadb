package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// IncidentRecord is one incident lifecycle write, snapshotted at the
// moment it happened.
type IncidentRecord struct {
	Lifecycle monitor.Lifecycle
	Incident  monitor.Incident
}

// MemoryStore collects everything the detector records, for assertions.
type MemoryStore struct {
	mu        sync.Mutex
	samples   []monitor.Sample
	spans     []monitor.SourceIncident
	incidents []IncidentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordSample(s monitor.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *MemoryStore) RecordSourceIncident(si *monitor.SourceIncident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, *si)
	return nil
}

func (m *MemoryStore) RecordIncident(l monitor.Lifecycle, inc *monitor.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, IncidentRecord{l, snapshot(inc)})
	return nil
}

func (m *MemoryStore) Samples() []monitor.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]monitor.Sample(nil), m.samples...)
}

func (m *MemoryStore) Spans() []monitor.SourceIncident {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]monitor.SourceIncident(nil), m.spans...)
}

func (m *MemoryStore) Incidents() []IncidentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]IncidentRecord(nil), m.incidents...)
}

// snapshot deep copies an incident so later mutation by the correlator
// does not rewrite history.
func snapshot(inc *monitor.Incident) monitor.Incident {
	out := *inc
	out.Affected = append([]monitor.Source(nil), inc.Affected...)
	out.Contributing = make([]*monitor.SourceIncident, len(inc.Contributing))
	for i, si := range inc.Contributing {
		copied := *si
		out.Contributing[i] = &copied
	}
	return out
}

// Logger writes structured logs through t.Log so they only show up for
// failing tests.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
