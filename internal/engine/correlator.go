package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// Event is one lifecycle step of one incident.
type Event struct {
	Lifecycle monitor.Lifecycle
	Incident  *monitor.Incident
}

// Correlator groups open abnormal spans into classified incidents.
//
// The open incidents always partition the open spans: every open span
// belongs to exactly one open incident. When the classification of a
// group changes, the old incident closes and a new one opens; an incident
// never changes its type in place.
type Correlator struct {
	sensors []monitor.Source
	open    []*monitor.Incident
}

// NewCorrelator builds a correlator that knows the full sensor inventory,
// which it needs to recognize a whole-network outage.
func NewCorrelator(sensors []monitor.Source) *Correlator {
	return &Correlator{sensors: sensors}
}

// Open returns the currently open incidents.
func (c *Correlator) Open() []*monitor.Incident {
	out := make([]*monitor.Incident, len(c.open))
	copy(out, c.open)
	return out
}

// Adopt resumes an incident that was persisted as still open before a
// restart.
func (c *Correlator) Adopt(inc *monitor.Incident) {
	c.open = append(c.open, inc)
}

// Reconcile brings the open incidents in line with the open spans after
// a tracker change at the given time. Closes are emitted before opens so
// a re-typed incident appears as a close/open pair.
func (c *Correlator) Reconcile(at time.Time, spans []*monitor.SourceIncident) []Event {
	groups := c.desired(spans)

	// Sources covered before this reconcile. A brand new group of
	// entirely uncovered sources gets backdated to its earliest span;
	// a group born from a re-type starts at the boundary instead.
	covered := make(map[monitor.Source]bool)
	for _, inc := range c.open {
		for _, src := range inc.Affected {
			covered[src] = true
		}
	}

	var events []Event
	var pending []group

	adopted := make(map[*monitor.Incident]bool)
	for _, g := range groups {
		inc := c.match(g)
		if inc == nil {
			pending = append(pending, g)
			continue
		}
		adopted[inc] = true
		if mergeMembers(inc, g.members) {
			events = append(events, Event{monitor.LifecycleUpdated, inc})
		}
	}

	stillOpen := c.open[:0]
	for _, inc := range c.open {
		if adopted[inc] {
			stillOpen = append(stillOpen, inc)
			continue
		}
		inc.EndedAt = at
		events = append(events, Event{monitor.LifecycleClosed, inc})
	}
	c.open = stillOpen

	for _, g := range pending {
		inc := c.newIncident(at, g, covered)
		c.open = append(c.open, inc)
		events = append(events, Event{monitor.LifecycleOpened, inc})
	}

	return events
}

type group struct {
	typ     monitor.IncidentType
	members []*monitor.SourceIncident
}

// desired computes the incident partition the open spans should map to.
//
// Precedence runs wifi outage > wifi degradation > internet > sensor: a
// dead LAN explains every downstream failure, so one wifi_outage absorbs
// all open spans. A degraded link still claims the sensor spans, since a
// sensor cannot be proven independently broken while the shared link is
// poor; only the internet path, checked through the reachable gateway,
// stands alone.
func (c *Correlator) desired(spans []*monitor.SourceIncident) []group {
	var wifi, gateway, internet *monitor.SourceIncident
	sensors := make(map[monitor.Source]*monitor.SourceIncident)
	for _, si := range spans {
		switch si.Source.Kind {
		case monitor.KindWiFi:
			wifi = si
		case monitor.KindGateway:
			gateway = si
		case monitor.KindInternet:
			internet = si
		case monitor.KindSensor:
			sensors[si.Source] = si
		}
	}

	allSensorsDown := true
	for _, s := range c.sensors {
		if sensors[s] == nil {
			allSensorsDown = false
			break
		}
	}

	// An unreachable gateway means the wifi layer is broken even when the
	// association itself still looks fine.
	lanDown := gateway != nil || (wifi != nil && wifi.Severity == monitor.SeverityOutage)

	if lanDown {
		if wifi != nil && gateway != nil && internet != nil && allSensorsDown {
			return []group{{monitor.TypeFullOutage, spans}}
		}
		return []group{{monitor.TypeWiFiOutage, spans}}
	}

	var groups []group
	if wifi != nil {
		members := []*monitor.SourceIncident{wifi}
		for _, s := range c.sensors {
			if si := sensors[s]; si != nil {
				members = append(members, si)
			}
		}
		groups = append(groups, group{monitor.TypeWiFiDegradation, members})
	}
	if internet != nil {
		groups = append(groups, group{monitor.TypeInternetOutage, []*monitor.SourceIncident{internet}})
	}
	if wifi == nil {
		for _, s := range c.sensors {
			if si := sensors[s]; si != nil {
				groups = append(groups, group{monitor.TypeSensorOutage, []*monitor.SourceIncident{si}})
			}
		}
	}
	return groups
}

func (c *Correlator) match(g group) *monitor.Incident {
	for _, inc := range c.open {
		if inc.Type != g.typ {
			continue
		}
		for _, m := range g.members {
			if inc.Affects(m.Source) {
				return inc
			}
		}
	}
	return nil
}

func (c *Correlator) newIncident(at time.Time, g group, covered map[monitor.Source]bool) *monitor.Incident {
	start := at
	fresh := true
	for _, m := range g.members {
		if covered[m.Source] {
			fresh = false
			break
		}
	}
	if fresh {
		start = g.members[0].StartedAt
		for _, m := range g.members[1:] {
			if m.StartedAt.Before(start) {
				start = m.StartedAt
			}
		}
	}

	inc := &monitor.Incident{
		ID:        uuid.NewString(),
		Type:      g.typ,
		StartedAt: start,
	}
	mergeMembers(inc, g.members)
	return inc
}

// mergeMembers pulls new spans under the incident and reports whether the
// membership grew. Spans that recover stay in Contributing; the affected
// set never shrinks.
func mergeMembers(inc *monitor.Incident, members []*monitor.SourceIncident) bool {
	grew := false
	for _, m := range members {
		if containsSpan(inc.Contributing, m) {
			continue
		}
		inc.Contributing = append(inc.Contributing, m)
		grew = true
		if !inc.Affects(m.Source) {
			inc.Affected = append(inc.Affected, m.Source)
		}
	}
	return grew
}

func containsSpan(spans []*monitor.SourceIncident, si *monitor.SourceIncident) bool {
	for _, s := range spans {
		if s == si {
			return true
		}
	}
	return false
}
