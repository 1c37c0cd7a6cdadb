package engine

import (
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
)

// Verdict is what a classifier makes of a single sample.
type Verdict int8

const (
	VerdictGood Verdict = iota
	VerdictBad
)

// Assessment is a classified sample. Severity is only meaningful when the
// verdict is VerdictBad.
type Assessment struct {
	Verdict  Verdict
	Severity monitor.Severity
}

// Classifier turns a raw sample into an assessment. Probes report what
// they measured; classifiers hold the opinions about what counts as bad,
// so thresholds stay in one place.
type Classifier func(monitor.Sample) Assessment

// ClassifierFor builds the classifier for one source from the configured
// thresholds.
func ClassifierFor(source monitor.Source, cfg config.Config) Classifier {
	switch source.Kind {
	case monitor.KindWiFi:
		return wifiClassifier(cfg.WiFi)
	case monitor.KindGateway:
		return pathClassifier(cfg.Gateway.LossCeiling, cfg.Gateway.LatencyCeiling)
	case monitor.KindInternet:
		return pathClassifier(cfg.Internet.LossCeiling, cfg.Internet.LatencyCeiling)
	default:
		return statusClassifier
	}
}

// statusClassifier trusts the probe's own status with no extra thresholds.
func statusClassifier(s monitor.Sample) Assessment {
	switch s.Status {
	case monitor.StatusOK:
		return Assessment{Verdict: VerdictGood}
	case monitor.StatusDegraded:
		return Assessment{Verdict: VerdictBad, Severity: monitor.SeverityDegraded}
	default:
		// Unreachable and unknown both count as outages: a probe that
		// cannot be completed is indistinguishable from the condition it
		// is probing for.
		return Assessment{Verdict: VerdictBad, Severity: monitor.SeverityOutage}
	}
}

func wifiClassifier(cfg config.WiFiConfig) Classifier {
	return func(s monitor.Sample) Assessment {
		a := statusClassifier(s)
		if a.Verdict != VerdictGood {
			return a
		}

		// Associated with an address, but the link may still be too weak
		// to be usable.
		if s.Metric("rssi", 0) < cfg.RSSIFloor {
			return Assessment{Verdict: VerdictBad, Severity: monitor.SeverityDegraded}
		}
		if s.Metric("link_quality", 100) < cfg.QualityFloor {
			return Assessment{Verdict: VerdictBad, Severity: monitor.SeverityDegraded}
		}
		return a
	}
}

func pathClassifier(lossCeiling float64, latencyCeiling time.Duration) Classifier {
	return func(s monitor.Sample) Assessment {
		a := statusClassifier(s)
		if a.Verdict != VerdictGood {
			return a
		}

		if lossCeiling > 0 && s.Metric("loss", 0) > lossCeiling {
			return Assessment{Verdict: VerdictBad, Severity: monitor.SeverityDegraded}
		}
		if latencyCeiling > 0 && s.Metric("rtt_avg", 0) > float64(latencyCeiling.Milliseconds()) {
			return Assessment{Verdict: VerdictBad, Severity: monitor.SeverityDegraded}
		}
		return a
	}
}
