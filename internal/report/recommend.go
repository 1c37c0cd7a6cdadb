package report

import (
	"fmt"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// recommend derives plain-language advice from the computed statistics.
// Thresholds here are opinions about home networks, not configuration.
func (a *Analysis) recommend() []string {
	var recs []string
	recs = append(recs, a.recommendWiFiSignal()...)
	recs = append(recs, a.recommendWiFiStability()...)
	recs = append(recs, a.recommendSensors()...)
	recs = append(recs, a.recommendNetwork()...)
	recs = append(recs, a.recommendPatterns()...)

	if len(recs) == 0 {
		recs = append(recs, "No major issues detected. The network is operating normally.")
	}
	return recs
}

func (a *Analysis) recommendWiFiSignal() []string {
	var recs []string
	w := a.WiFi
	if !w.HasRSSI {
		return recs
	}

	if w.AvgRSSI < -75 {
		recs = append(recs, fmt.Sprintf(
			"WiFi signal is weak (average %.0f dBm). Consider moving the access point closer or adding a repeater.",
			w.AvgRSSI))
	} else if w.AvgRSSI < -65 {
		recs = append(recs, fmt.Sprintf(
			"WiFi signal could be improved (average %.0f dBm). Consider repositioning the device or the access point.",
			w.AvgRSSI))
	}

	if w.MinRSSI < -85 {
		recs = append(recs, fmt.Sprintf(
			"WiFi signal drops to very weak levels (%.0f dBm at worst). This may cause intermittent connectivity.",
			w.MinRSSI))
	}

	if w.RSSIStdev > 10 {
		recs = append(recs, fmt.Sprintf(
			"WiFi signal varies significantly (±%.1f dBm). This may indicate interference or obstruction; try another channel.",
			w.RSSIStdev))
	}

	if len(w.WeakHours) > 0 {
		recs = append(recs, fmt.Sprintf(
			"WiFi signal is particularly weak during: %s. This may indicate time-based interference.",
			formatHours(w.WeakHours)))
	}

	return recs
}

func (a *Analysis) recommendWiFiStability() []string {
	var recs []string
	w := a.WiFi

	if w.Disconnections == 0 {
		return recs
	}
	if w.DisconnectRate > 5 {
		recs = append(recs, fmt.Sprintf(
			"WiFi disconnected %d times (%.1f%% of checks). Check the supplicant configuration and the kernel driver logs.",
			w.Disconnections, w.DisconnectRate))
	} else if w.Disconnections > 3 {
		recs = append(recs, fmt.Sprintf(
			"WiFi disconnected %d times. Monitor for recurring patterns and check the router logs.",
			w.Disconnections))
	}
	return recs
}

func (a *Analysis) recommendSensors() []string {
	var recs []string

	for _, s := range a.Sensors {
		if s.Checks == 0 {
			continue
		}
		failureRate := float64(s.Failures) / float64(s.Checks) * 100
		independent := s.Failures - s.CorrelatedFailures

		if independent > 0 && failureRate > 10 {
			recs = append(recs, fmt.Sprintf(
				"Sensor %q has %d failures (%.1f%% of checks) independent of WiFi issues. Check the device, its power supply, and its network settings.",
				s.Name, independent, failureRate))
		} else if failureRate > 20 {
			recs = append(recs, fmt.Sprintf(
				"Sensor %q has %d failures (%.1f%% of checks); %d appear correlated with WiFi issues.",
				s.Name, s.Failures, failureRate, s.CorrelatedFailures))
		}
	}
	return recs
}

func (a *Analysis) recommendNetwork() []string {
	var recs []string

	if a.Gateway.Checks > 0 {
		if a.Gateway.FailurePercent > 5 {
			recs = append(recs, fmt.Sprintf(
				"Gateway unreachable in %.1f%% of checks. This points at the WiFi layer rather than the internet connection.",
				a.Gateway.FailurePercent))
		}
		if a.Gateway.AvgLossPercent > 5 {
			recs = append(recs, fmt.Sprintf(
				"Average packet loss to the gateway is %.1f%%. This may indicate WiFi interference or poor signal quality.",
				a.Gateway.AvgLossPercent))
		}
		if a.Gateway.AvgLatencyMS > 50 {
			recs = append(recs, fmt.Sprintf(
				"High latency to the gateway (average %.1f ms). Check for congestion or interference.",
				a.Gateway.AvgLatencyMS))
		}
	}

	// An unstable internet path behind a healthy gateway is the ISP's
	// problem, not the WiFi's.
	if a.Internet.Checks > 0 && a.Internet.FailurePercent > 5 && a.Gateway.FailurePercent <= 5 {
		recs = append(recs, fmt.Sprintf(
			"Internet connectivity failed in %.1f%% of checks while the gateway stayed reachable. This indicates ISP or router issues.",
			a.Internet.FailurePercent))
	}

	return recs
}

func (a *Analysis) recommendPatterns() []string {
	var recs []string

	if len(a.ProblemHours) > 0 {
		recs = append(recs, fmt.Sprintf(
			"Most incidents occur during: %s. Investigate what happens at those times (backups, heavy usage, interference).",
			formatHours(a.ProblemHours)))
	}

	if n := a.ByType[monitor.TypeFullOutage]; n > 1 {
		recs = append(recs, fmt.Sprintf(
			"The whole network went dark %d times. Check the router's power supply and consider a UPS.", n))
	}

	return recs
}
