package probe

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/macrat/go-parallel-pinger"
)

const (
	pingPackets  = 3
	pingInterval = 200 * time.Millisecond
)

// pingService shares one ICMP listener pair between every ping probe in
// the process. Starting a listener per probe would need one raw socket
// each; the gateway, internet, and sensor probes all go through here.
type pingService struct {
	sync.Mutex

	v4, v6  *pinger.Pinger
	started bool
	err     error
}

var sharedPinger = &pingService{}

func (ps *pingService) get(ip net.IP) (*pinger.Pinger, error) {
	ps.Lock()
	defer ps.Unlock()

	if !ps.started {
		ps.v4 = pinger.NewIPv4()
		ps.v6 = pinger.NewIPv6()

		ctx := context.Background()
		ps.err = ps.v4.Start(ctx)
		if ps.err == nil {
			ps.err = ps.v6.Start(ctx)
		}
		if ps.err != nil {
			// Unprivileged ICMP needs net.ipv4.ping_group_range on
			// Linux; fall back to raw sockets before giving up.
			ps.v4 = pinger.NewIPv4()
			ps.v6 = pinger.NewIPv6()
			ps.v4.SetPrivileged(!pinger.DEFAULT_PRIVILEGED)
			ps.v6.SetPrivileged(!pinger.DEFAULT_PRIVILEGED)
			ps.err = ps.v4.Start(ctx)
			if ps.err == nil {
				ps.err = ps.v6.Start(ctx)
			}
		}
		ps.started = true
	}

	if ps.err != nil {
		return nil, ps.err
	}
	if ip.To4() != nil {
		return ps.v4, nil
	}
	return ps.v6, nil
}

// ping resolves and pings one host, returning the raw pinger result.
func (ps *pingService) ping(ctx context.Context, host string) (pinger.Result, error) {
	target, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return pinger.Result{}, err
	}

	p, err := ps.get(target.IP)
	if err != nil {
		return pinger.Result{}, err
	}

	return p.Ping(ctx, target, pingPackets, pingInterval)
}

func pingMetrics(result pinger.Result) map[string]float64 {
	loss := 1.0
	if result.Sent > 0 {
		loss = float64(result.Loss) / float64(result.Sent)
	}

	return map[string]float64{
		"rtt_min":      float64(result.MinRTT.Microseconds()) / 1000,
		"rtt_avg":      float64(result.AvgRTT.Microseconds()) / 1000,
		"rtt_max":      float64(result.MaxRTT.Microseconds()) / 1000,
		"packets_sent": float64(result.Sent),
		"packets_recv": float64(result.Recv),
		"loss":         loss,
	}
}

func pingStatus(result pinger.Result) (monitor.Status, string) {
	switch {
	case result.Loss == 0:
		return monitor.StatusOK, "all packets came back"
	case result.Recv == 0:
		return monitor.StatusUnreachable, "all packets have dropped"
	default:
		return monitor.StatusDegraded, "some packets have dropped"
	}
}

// PingProbe checks one host via ICMP echo. It backs the gateway source
// and ping type sensors.
type PingProbe struct {
	source  monitor.Source
	host    string
	timeout time.Duration
}

// NewGatewayProbe builds the probe for the gateway source.
func NewGatewayProbe(cfg config.GatewayConfig) PingProbe {
	return PingProbe{
		source:  monitor.GatewaySource(),
		host:    cfg.Address,
		timeout: cfg.Timeout,
	}
}

// NewSensorPingProbe builds a ping probe for one sensor.
func NewSensorPingProbe(cfg config.SensorConfig) PingProbe {
	return PingProbe{
		source:  monitor.SensorSource(cfg.Name),
		host:    cfg.Address,
		timeout: cfg.SensorTimeout(),
	}
}

func (p PingProbe) Source() monitor.Source {
	return p.source
}

func (p PingProbe) Check(ctx context.Context) monitor.Sample {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	startTime := time.Now()
	result, err := sharedPinger.ping(ctx, p.host)
	if err != nil {
		return timeoutOr(ctx, unknownSample(p.source, startTime, err))
	}

	status, message := pingStatus(result)
	return timeoutOr(ctx, monitor.Sample{
		Source:  p.source,
		Time:    startTime,
		Status:  status,
		Latency: result.AvgRTT,
		Metrics: pingMetrics(result),
		Message: message,
	})
}

// InternetProbe checks the internet path against several targets at
// once. The path counts as up while any one target answers, so a single
// flaky anycast host does not read as an internet outage.
type InternetProbe struct {
	targets []string
	timeout time.Duration
}

func NewInternetProbe(cfg config.InternetConfig) InternetProbe {
	return InternetProbe{
		targets: cfg.Targets,
		timeout: cfg.Timeout,
	}
}

func (p InternetProbe) Source() monitor.Source {
	return monitor.InternetSource()
}

func (p InternetProbe) Check(ctx context.Context) monitor.Sample {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	startTime := time.Now()

	type answer struct {
		result pinger.Result
		err    error
	}
	answers := make([]answer, len(p.targets))

	var wg sync.WaitGroup
	for i, target := range p.targets {
		i, target := i, target
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := sharedPinger.ping(ctx, target)
			answers[i] = answer{result, err}
		}()
	}
	wg.Wait()

	up := 0
	partial := 0
	var best *pinger.Result
	for i := range answers {
		if answers[i].err != nil {
			continue
		}
		r := &answers[i].result
		if r.Recv > 0 {
			partial++
		}
		if r.Loss == 0 {
			up++
			if best == nil || r.AvgRTT < best.AvgRTT {
				best = r
			}
		}
	}

	sample := monitor.Sample{
		Source: monitor.InternetSource(),
		Time:   startTime,
	}

	switch {
	case up > 0:
		sample.Status = monitor.StatusOK
		sample.Latency = best.AvgRTT
		sample.Metrics = pingMetrics(*best)
		sample.Message = "internet reachable"
	case partial > 0:
		sample.Status = monitor.StatusDegraded
		sample.Message = "internet targets dropping packets"
	default:
		sample.Status = monitor.StatusUnreachable
		sample.Message = "no internet target reachable"
	}
	if sample.Metrics == nil {
		sample.Metrics = make(map[string]float64)
	}
	sample.Metrics["targets_up"] = float64(up)
	sample.Metrics["targets_total"] = float64(len(p.targets))

	return timeoutOr(ctx, sample)
}
