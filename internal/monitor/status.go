package monitor

const (
	// StatusUnknown means the probe itself failed (timeout, parse error,
	// broken tool), so nothing is known about the target.
	// A run of unknown samples is still evidence against the source.
	StatusUnknown Status = iota

	// StatusOK means the check succeeded and the target looks healthy.
	StatusOK

	// StatusDegraded means the target responded but below expectations,
	// for example partial packet loss or a non-2xx HTTP answer.
	StatusDegraded

	// StatusUnreachable means the check completed and the target is
	// confirmed unreachable.
	StatusUnreachable
)

// Status is the outcome of a single probe invocation.
type Status int8

// ParseStatus parses a status string.
//
// Unsupported values parse as StatusUnknown.
func ParseStatus(raw string) Status {
	switch raw {
	case "ok":
		return StatusOK
	case "degraded":
		return StatusDegraded
	case "unreachable":
		return StatusUnreachable
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// It never fails; unsupported values become StatusUnknown.
func (s *Status) UnmarshalText(text []byte) error {
	*s = ParseStatus(string(text))
	return nil
}
