package store

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// Restore replays the log file into memory and returns the incidents a
// previous run left open.
//
// An incident only comes back alive if at least one of its open spans
// has a sample newer than that source's gap limit; after a long outage
// of the monitor itself there is no way to know what happened, so stale
// incidents are closed at the last time anything was actually observed.
func (s *Store) Restore(now time.Time, gapLimit func(monitor.Source) time.Duration) ([]*monitor.Incident, error) {
	lastSeen := make(map[monitor.Source]time.Time)
	latest := make(map[string]record)
	var order []string

	s.historyLock.Lock()
	s.recent = make(map[monitor.Source][]monitor.Sample)
	err := s.scan(func(r record) {
		switch r.Kind {
		case kindSample:
			if r.Sample == nil {
				return
			}
			s.appendRecent(*r.Sample)
			if r.Sample.Time.After(lastSeen[r.Sample.Source]) {
				lastSeen[r.Sample.Source] = r.Sample.Time
			}
		case kindIncident:
			if r.Incident == nil {
				return
			}
			if _, ok := latest[r.Incident.ID]; !ok {
				order = append(order, r.Incident.ID)
			}
			latest[r.Incident.ID] = r
		}
	})
	s.historyLock.Unlock()
	if err != nil {
		return nil, err
	}

	var resumed []*monitor.Incident
	for _, id := range order {
		r := latest[id]
		if r.Lifecycle == monitor.LifecycleClosed || !r.Incident.Open() {
			continue
		}
		inc := r.Incident

		stale := true
		closeAt := inc.StartedAt
		for _, si := range inc.Contributing {
			seen, ok := lastSeen[si.Source]
			if ok && seen.After(closeAt) {
				closeAt = seen
			}
			if si.Open() && ok && now.Sub(seen) <= gapLimit(si.Source) {
				stale = false
			}
		}

		if !stale {
			s.historyLock.Lock()
			s.open = append(s.open, inc)
			s.historyLock.Unlock()
			resumed = append(resumed, inc)
			continue
		}

		for _, si := range inc.Contributing {
			if !si.Open() {
				continue
			}
			si.EndedAt = closeAt
			if seen, ok := lastSeen[si.Source]; ok && seen.Before(closeAt) {
				si.EndedAt = seen
			}
			if err := s.RecordSourceIncident(si); err != nil {
				return nil, err
			}
		}
		inc.EndedAt = closeAt
		if err := s.RecordIncident(monitor.LifecycleClosed, inc); err != nil {
			return nil, err
		}
	}

	return resumed, nil
}

// Snapshot is everything in the log that overlaps a report window.
type Snapshot struct {
	Samples []monitor.Sample
	Spans   []monitor.SourceIncident

	// Incidents holds the final known state of every incident in the
	// window; still-open ones have a zero EndedAt.
	Incidents []monitor.Incident
}

// ScanSince reads the log and collects everything that is still relevant
// at or after the given time. Spans and incidents that are written more
// than once appear only in their final state.
func (s *Store) ScanSince(since time.Time) (Snapshot, error) {
	var snap Snapshot

	spanIndex := make(map[string]int)
	incidentIndex := make(map[string]int)

	err := s.scan(func(r record) {
		switch r.Kind {
		case kindSample:
			if r.Sample == nil || r.Sample.Time.Before(since) {
				return
			}
			snap.Samples = append(snap.Samples, *r.Sample)

		case kindSourceIncident:
			if r.Span == nil {
				return
			}
			if !r.Span.Open() && r.Span.EndedAt.Before(since) {
				return
			}
			key := spanKey(r.Span)
			if i, ok := spanIndex[key]; ok {
				snap.Spans[i] = *r.Span
			} else {
				spanIndex[key] = len(snap.Spans)
				snap.Spans = append(snap.Spans, *r.Span)
			}

		case kindIncident:
			if r.Incident == nil {
				return
			}
			if !r.Incident.Open() && r.Incident.EndedAt.Before(since) {
				return
			}
			if i, ok := incidentIndex[r.Incident.ID]; ok {
				snap.Incidents[i] = *r.Incident
			} else {
				incidentIndex[r.Incident.ID] = len(snap.Incidents)
				snap.Incidents = append(snap.Incidents, *r.Incident)
			}
		}
	})
	return snap, err
}

func spanKey(si *monitor.SourceIncident) string {
	return si.Source.String() + "/" + si.StartedAt.Format(time.RFC3339Nano)
}

// Trim rewrites the log file without the records older than the cutoff.
// Spans and incidents that are still open in their final state survive
// regardless of age, so an open incident's history is never cut in half.
func (s *Store) Trim(before time.Time) error {
	if s.path == "" {
		return nil
	}

	s.fileLock.Lock()
	defer s.fileLock.Unlock()

	// First pass: the final lifecycle state of every span and incident.
	// A per-record decision would keep a stale opened record after its
	// closing record aged out, resurrecting a long-closed incident on
	// the next scan.
	openSpans := make(map[string]bool)
	openIncidents := make(map[string]bool)
	if err := s.scan(func(r record) {
		switch r.Kind {
		case kindSourceIncident:
			if r.Span != nil {
				openSpans[spanKey(r.Span)] = r.Span.Open()
			}
		case kindIncident:
			if r.Incident != nil {
				openIncidents[r.Incident.ID] = r.Incident.Open() && r.Lifecycle != monitor.LifecycleClosed
			}
		}
	}); err != nil {
		return fmt.Errorf("trim log: %w", err)
	}

	tmp := s.path + ".trim"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("trim log: %w", err)
	}

	w := bufio.NewWriter(out)
	scanErr := s.scan(func(r record) {
		if !keepAfterTrim(r, before, openSpans, openIncidents) {
			return
		}
		line, err := json.Marshal(r)
		if err != nil {
			return
		}
		w.Write(line)
		w.WriteByte('\n')
	})
	if scanErr == nil {
		scanErr = w.Flush()
	}
	if err := out.Close(); scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("trim log: %w", scanErr)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("trim log: %w", err)
	}
	return nil
}

func keepAfterTrim(r record, before time.Time, openSpans, openIncidents map[string]bool) bool {
	if !r.Time.Before(before) {
		return true
	}
	switch r.Kind {
	case kindSourceIncident:
		return r.Span != nil && openSpans[spanKey(r.Span)]
	case kindIncident:
		return r.Incident != nil && openIncidents[r.Incident.ID]
	}
	return false
}
