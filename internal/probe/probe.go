package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
)

var (
	ErrUnsupportedProbe = errors.New("unsupported probe type")
)

// Prober checks one source and reports what it saw. A Prober never
// returns an error: a failed check is a sample with StatusUnknown, which
// is evidence in its own right.
type Prober interface {
	// Source returns the source this prober reports for.
	// It does not change during the lifetime of the instance.
	Source() monitor.Source

	// Check performs one observation. It respects ctx's deadline and is
	// the only place in the system allowed to block on I/O.
	Check(ctx context.Context) monitor.Sample
}

// ForSensor builds the prober for one inventory entry.
func ForSensor(cfg config.SensorConfig) (Prober, error) {
	switch cfg.Probe {
	case "ping":
		return NewSensorPingProbe(cfg), nil
	case "http":
		return NewHTTPProbe(cfg)
	case "mqtt":
		return NewMQTTProbe(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProbe, cfg.Probe)
	}
}

// timeoutOr rewrites a sample when its context expired, so a slow probe
// reads as a probe failure rather than a target verdict.
func timeoutOr(ctx context.Context, s monitor.Sample) monitor.Sample {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		s.Status = monitor.StatusUnknown
		s.Message = "probe timed out"
		s.Metrics = nil
	case context.Canceled:
		s.Status = monitor.StatusUnknown
		s.Message = "probe aborted"
		s.Metrics = nil
	}
	return s
}

// unknownSample is the shared failure shape for a probe that could not
// produce a reading at all.
func unknownSample(source monitor.Source, at time.Time, err error) monitor.Sample {
	return monitor.Sample{
		Source:  source,
		Time:    at,
		Status:  monitor.StatusUnknown,
		Message: err.Error(),
	}
}
