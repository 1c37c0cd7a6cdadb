package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
)

// WiFiProbe reads the state of the local radio link by shelling out to
// iw, with /proc/net/wireless as a fallback on hosts without it.
// There is no stable kernel API worth binding for this; the command line
// tools are the interface the platform actually maintains.
type WiFiProbe struct {
	iface   string
	timeout time.Duration

	// runCommand is swapped out by tests.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
	readProc   func() (string, error)
}

func NewWiFiProbe(cfg config.WiFiConfig) *WiFiProbe {
	return &WiFiProbe{
		iface:      cfg.Interface,
		timeout:    cfg.Timeout,
		runCommand: runCommand,
		readProc: func() (string, error) {
			data, err := os.ReadFile("/proc/net/wireless")
			return string(data), err
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

func (p *WiFiProbe) Source() monitor.Source {
	return monitor.WiFiSource()
}

type wifiLink struct {
	Associated bool
	SSID       string
	RSSI       float64
	HasRSSI    bool
	FreqMHz    float64
	Quality    float64
	HasQuality bool
}

var (
	iwSSIDRe   = regexp.MustCompile(`(?m)^\s*SSID: (.+)$`)
	iwSignalRe = regexp.MustCompile(`(?m)^\s*signal: (-?\d+) dBm`)
	iwFreqRe   = regexp.MustCompile(`(?m)^\s*freq: (\d+(?:\.\d+)?)`)
)

// parseIWLink extracts the association state from `iw dev <if> link`.
func parseIWLink(output string) wifiLink {
	var link wifiLink

	if strings.Contains(output, "Not connected") {
		return link
	}
	if !strings.Contains(output, "Connected to") {
		return link
	}
	link.Associated = true

	if m := iwSSIDRe.FindStringSubmatch(output); m != nil {
		link.SSID = strings.TrimSpace(m[1])
	}
	if m := iwSignalRe.FindStringSubmatch(output); m != nil {
		link.RSSI, _ = strconv.ParseFloat(m[1], 64)
		link.HasRSSI = true
	}
	if m := iwFreqRe.FindStringSubmatch(output); m != nil {
		link.FreqMHz, _ = strconv.ParseFloat(m[1], 64)
	}

	return link
}

// parseProcWireless extracts link quality and signal level for one
// interface from /proc/net/wireless.
func parseProcWireless(content, iface string) (wifiLink, bool) {
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.HasPrefix(fields[0], iface+":") {
			continue
		}

		quality, err1 := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		signal, err2 := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err1 != nil || err2 != nil {
			return wifiLink{}, false
		}
		if signal > 127 {
			signal -= 256
		}

		return wifiLink{
			Associated: true,
			RSSI:       signal,
			HasRSSI:    true,
			Quality:    quality / 70 * 100,
			HasQuality: true,
		}, true
	}
	return wifiLink{}, false
}

// freqToChannel converts a carrier frequency in MHz to a channel number.
func freqToChannel(freqMHz float64) int {
	f := int(freqMHz)
	switch {
	case f == 2484:
		return 14
	case f >= 2412 && f < 2484:
		return (f-2412)/5 + 1
	case f >= 5170 && f <= 5825:
		return (f - 5000) / 5
	default:
		return 0
	}
}

func (p *WiFiProbe) Check(ctx context.Context) monitor.Sample {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	startTime := time.Now()

	out, err := p.runCommand(ctx, "iw", "dev", p.iface, "link")
	link := parseIWLink(out)
	if err != nil {
		// iw missing or unusable; /proc still knows the signal level.
		proc, procErr := p.readProc()
		if procErr != nil {
			return timeoutOr(ctx, unknownSample(p.Source(), startTime,
				fmt.Errorf("iw: %w", err)))
		}
		var ok bool
		if link, ok = parseProcWireless(proc, p.iface); !ok {
			link = wifiLink{}
		}
	}

	sample := monitor.Sample{
		Source:  p.Source(),
		Time:    startTime,
		Metrics: make(map[string]float64),
	}

	if !link.Associated {
		sample.Status = monitor.StatusUnreachable
		sample.Message = fmt.Sprintf("%s is not associated", p.iface)
		return timeoutOr(ctx, sample)
	}

	if !p.hasIPv4(ctx) {
		sample.Status = monitor.StatusUnreachable
		sample.Message = fmt.Sprintf("%s has no IPv4 address", p.iface)
		return timeoutOr(ctx, sample)
	}

	sample.Status = monitor.StatusOK
	if link.SSID != "" {
		sample.Message = "associated with " + link.SSID
	} else {
		sample.Message = "associated"
	}
	if link.HasRSSI {
		sample.Metrics["rssi"] = link.RSSI
	}
	if link.HasQuality {
		sample.Metrics["link_quality"] = link.Quality
	}
	if link.FreqMHz > 0 {
		sample.Metrics["frequency_mhz"] = link.FreqMHz
		if ch := freqToChannel(link.FreqMHz); ch > 0 {
			sample.Metrics["channel"] = float64(ch)
		}
	}

	return timeoutOr(ctx, sample)
}

var inetRe = regexp.MustCompile(`(?m)\binet (\d+\.\d+\.\d+\.\d+)`)

func (p *WiFiProbe) hasIPv4(ctx context.Context) bool {
	out, err := p.runCommand(ctx, "ip", "-4", "addr", "show", p.iface)
	if err != nil {
		// Cannot tell; do not turn a broken ip binary into an outage.
		return true
	}
	return inetRe.MatchString(out)
}
