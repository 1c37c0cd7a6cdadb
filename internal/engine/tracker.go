package engine

import (
	"time"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// Change is what one sample did to a tracker. At most one field is set.
type Change struct {
	// Opened is the span that just crossed the confirmation threshold.
	Opened *monitor.SourceIncident

	// Escalated is the open span whose severity was just raised.
	Escalated *monitor.SourceIncident

	// Closed is the span that just crossed the recovery threshold.
	Closed *monitor.SourceIncident
}

// Empty reports whether the sample changed nothing.
func (c Change) Empty() bool {
	return c.Opened == nil && c.Escalated == nil && c.Closed == nil
}

// Tracker debounces one source's samples into abnormal spans.
//
// A single bad sample makes the source suspect; only a full streak of bad
// samples opens a span, backdated to the first of them. Symmetrically, a
// streak of good samples closes the span at the first good sample's time.
// A lone good or bad sample amid the opposite streak resets that streak.
type Tracker struct {
	source        monitor.Source
	classify      Classifier
	confirmations int
	recoveries    int

	suspect    []monitor.Sample
	worst      monitor.Severity
	current    *monitor.SourceIncident
	goodStreak int
	recoverAt  time.Time
}

func NewTracker(source monitor.Source, classify Classifier, confirmations, recoveries int) *Tracker {
	return &Tracker{
		source:        source,
		classify:      classify,
		confirmations: confirmations,
		recoveries:    recoveries,
	}
}

// Source is the signal this tracker watches.
func (t *Tracker) Source() monitor.Source {
	return t.source
}

// Current is the open abnormal span, or nil while the source is healthy
// or merely suspect.
func (t *Tracker) Current() *monitor.SourceIncident {
	return t.current
}

// Adopt resumes a span that was persisted as still open before a restart.
func (t *Tracker) Adopt(si *monitor.SourceIncident) {
	t.current = si
	t.suspect = nil
	t.worst = ""
	t.goodStreak = 0
	t.recoverAt = time.Time{}
}

// Observe feeds one sample through the state machine.
func (t *Tracker) Observe(s monitor.Sample) Change {
	a := t.classify(s)
	if a.Verdict == VerdictBad {
		return t.observeBad(s, a.Severity)
	}
	return t.observeGood(s)
}

func (t *Tracker) observeBad(s monitor.Sample, severity monitor.Severity) Change {
	t.goodStreak = 0
	t.recoverAt = time.Time{}

	if t.current != nil {
		t.current.Evidence = append(t.current.Evidence, s)

		// Severity only ever escalates within one span.
		if severity == monitor.SeverityOutage && t.current.Severity != monitor.SeverityOutage {
			t.current.Severity = monitor.SeverityOutage
			return Change{Escalated: t.current}
		}
		return Change{}
	}

	t.suspect = append(t.suspect, s)
	if severity == monitor.SeverityOutage || t.worst == "" {
		t.worst = severity
	}

	if len(t.suspect) < t.confirmations {
		return Change{}
	}

	t.current = &monitor.SourceIncident{
		Source:    t.source,
		StartedAt: t.suspect[0].Time,
		Severity:  t.worst,
		Evidence:  t.suspect,
	}
	t.suspect = nil
	t.worst = ""
	return Change{Opened: t.current}
}

func (t *Tracker) observeGood(s monitor.Sample) Change {
	if t.current == nil {
		// A suspect streak that never confirmed leaves no trace.
		t.suspect = nil
		t.worst = ""
		return Change{}
	}

	if t.goodStreak == 0 {
		t.recoverAt = s.Time
	}
	t.goodStreak++
	if t.goodStreak < t.recoveries {
		return Change{}
	}

	closed := t.current
	closed.EndedAt = t.recoverAt
	t.current = nil
	t.goodStreak = 0
	t.recoverAt = time.Time{}
	return Change{Closed: closed}
}
