package monitor

import (
	"time"
)

const (
	SeverityDegraded Severity = "degraded"
	SeverityOutage   Severity = "outage"
)

// Severity is how bad an abnormal span is for its own source.
type Severity string

// SourceIncident is a contiguous abnormal span of exactly one source.
//
// It is owned by that source's state tracker; incidents only reference it.
type SourceIncident struct {
	Source    Source    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Severity  Severity  `json:"severity"`

	// Evidence keeps the samples that opened and escalated the span.
	Evidence []Sample `json:"evidence,omitempty"`
}

// Open reports whether the span has not ended yet.
func (si *SourceIncident) Open() bool {
	return si.EndedAt.IsZero()
}

const (
	TypeWiFiOutage      IncidentType = "wifi_outage"
	TypeWiFiDegradation IncidentType = "wifi_degradation"
	TypeInternetOutage  IncidentType = "internet_outage"
	TypeSensorOutage    IncidentType = "sensor_outage"
	TypeFullOutage      IncidentType = "full_outage"
)

// IncidentType is the root cause classification of an incident.
type IncidentType string

// Incident is the externally visible, classified event. It may aggregate
// several SourceIncidents when one cause explains them all.
type Incident struct {
	ID        string       `json:"id"`
	Type      IncidentType `json:"type"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`

	// Affected is every source that was ever pulled under this incident.
	Affected []Source `json:"affected"`

	// Contributing references the source incidents that produced this
	// incident, including ones that have already recovered.
	Contributing []*SourceIncident `json:"contributing,omitempty"`
}

// Open reports whether the incident has not ended yet.
func (i *Incident) Open() bool {
	return i.EndedAt.IsZero()
}

// Affects reports whether the source is in the affected set.
func (i *Incident) Affects(s Source) bool {
	for _, a := range i.Affected {
		if a == s {
			return true
		}
	}
	return false
}

const (
	// LifecycleOpened marks the first report of an incident.
	LifecycleOpened Lifecycle = "opened"
	// LifecycleUpdated marks a change of an open incident that is not a
	// boundary: severity escalation or a grown affected set.
	LifecycleUpdated Lifecycle = "updated"
	// LifecycleClosed marks the final report of an incident.
	LifecycleClosed Lifecycle = "closed"
	// LifecycleStillOpen marks a shutdown flush of an incident that has
	// not resolved, so a restart can decide whether to resume or close it.
	LifecycleStillOpen Lifecycle = "still_open"
)

// Lifecycle tags a record of an incident with the reason it was written.
type Lifecycle string
