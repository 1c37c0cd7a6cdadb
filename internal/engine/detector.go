package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/metrics"
	"github.com/lanwatch/lanwatch/internal/monitor"
)

// Store is where the detector records everything it sees and decides.
type Store interface {
	RecordSample(monitor.Sample) error
	RecordSourceIncident(*monitor.SourceIncident) error
	RecordIncident(monitor.Lifecycle, *monitor.Incident) error
}

// Detector is the single consumer of the merged sample stream. It owns
// one tracker per configured source and the correlator; nothing else
// touches them, so the only lock here guards the HTTP snapshot reads.
type Detector struct {
	mu         sync.Mutex
	trackers   map[monitor.Source]*Tracker
	order      []monitor.Source
	correlator *Correlator
	store      Store
	logger     *slog.Logger
}

func NewDetector(cfg config.Config, store Store, logger *slog.Logger) *Detector {
	sources := []monitor.Source{
		monitor.WiFiSource(),
		monitor.GatewaySource(),
		monitor.InternetSource(),
	}
	var sensors []monitor.Source
	for _, s := range cfg.Sensors {
		src := monitor.SensorSource(s.Name)
		sources = append(sources, src)
		sensors = append(sensors, src)
	}

	trackers := make(map[monitor.Source]*Tracker, len(sources))
	for _, src := range sources {
		trackers[src] = NewTracker(
			src,
			ClassifierFor(src, cfg),
			cfg.Detector.Confirmations,
			cfg.Detector.Recoveries,
		)
	}

	return &Detector{
		trackers:   trackers,
		order:      sources,
		correlator: NewCorrelator(sensors),
		store:      store,
		logger:     logger,
	}
}

// Adopt resumes incidents that a previous run persisted as still open.
// Must be called before Run.
func (d *Detector) Adopt(incidents []*monitor.Incident) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, inc := range incidents {
		resumed := false
		for _, si := range inc.Contributing {
			if !si.Open() {
				continue
			}
			if t, ok := d.trackers[si.Source]; ok {
				t.Adopt(si)
				resumed = true
			}
		}
		if !resumed {
			d.logger.Warn("dropping stale incident with no live sources",
				"incident", inc.ID, "type", inc.Type)
			continue
		}

		d.correlator.Adopt(inc)
		d.logger.Info("resuming incident from previous run",
			"incident", inc.ID, "type", inc.Type, "since", inc.StartedAt)
	}
}

// Run consumes samples until ctx is cancelled, then flushes every open
// incident as still_open so the next run can pick them up.
func (d *Detector) Run(ctx context.Context, samples <-chan monitor.Sample) {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case s := <-samples:
			d.handle(s)
		}
	}
}

// OpenIncidents is a snapshot of the open incidents for the HTTP endpoint.
func (d *Detector) OpenIncidents() []*monitor.Incident {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.correlator.Open()
}

func (d *Detector) handle(s monitor.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()

	metrics.ObserveSample(s.Source.Kind, s.Status)
	if err := d.store.RecordSample(s); err != nil {
		d.logger.Error("failed to record sample", "source", s.Source, "error", err)
	}

	t, ok := d.trackers[s.Source]
	if !ok {
		d.logger.Warn("dropping sample from unconfigured source", "source", s.Source)
		return
	}

	change := t.Observe(s)
	if change.Empty() {
		return
	}

	at := s.Time
	switch {
	case change.Opened != nil:
		d.logger.Warn("source became abnormal",
			"source", s.Source, "severity", change.Opened.Severity,
			"since", change.Opened.StartedAt)
		d.recordSpan(change.Opened)
	case change.Escalated != nil:
		d.logger.Warn("source got worse",
			"source", s.Source, "severity", change.Escalated.Severity)
		d.recordSpan(change.Escalated)
	case change.Closed != nil:
		at = change.Closed.EndedAt
		d.logger.Info("source recovered",
			"source", s.Source, "down_since", change.Closed.StartedAt,
			"until", change.Closed.EndedAt)
		d.recordSpan(change.Closed)
	}

	for _, ev := range d.correlator.Reconcile(at, d.openSpans()) {
		if ev.Lifecycle == monitor.LifecycleOpened {
			metrics.CountIncident(ev.Incident.Type)
		}
		d.logger.Warn("incident "+string(ev.Lifecycle),
			"incident", ev.Incident.ID, "type", ev.Incident.Type,
			"affected", len(ev.Incident.Affected))
		if err := d.store.RecordIncident(ev.Lifecycle, ev.Incident); err != nil {
			d.logger.Error("failed to record incident",
				"incident", ev.Incident.ID, "error", err)
		}
	}
}

// openSpans collects the open spans in stable source order, so the
// correlator's output does not depend on sample arrival order.
func (d *Detector) openSpans() []*monitor.SourceIncident {
	var spans []*monitor.SourceIncident
	for _, src := range d.order {
		if si := d.trackers[src].Current(); si != nil {
			spans = append(spans, si)
		}
	}
	return spans
}

func (d *Detector) recordSpan(si *monitor.SourceIncident) {
	if err := d.store.RecordSourceIncident(si); err != nil {
		d.logger.Error("failed to record source incident",
			"source", si.Source, "error", err)
	}
}

func (d *Detector) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, inc := range d.correlator.Open() {
		d.logger.Warn("shutting down with open incident",
			"incident", inc.ID, "type", inc.Type)
		if err := d.store.RecordIncident(monitor.LifecycleStillOpen, inc); err != nil {
			d.logger.Error("failed to flush incident",
				"incident", inc.ID, "error", err)
		}
	}
}
