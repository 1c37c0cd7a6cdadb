package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
)

var (
	HTTPUserAgent = "lanwatch health check"

	httpClient = &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
)

// HTTPProbe checks a sensor that exposes an HTTP endpoint. Any 2xx
// answer is healthy; any other answer means the device is up but not
// well; a transport error means it is unreachable.
type HTTPProbe struct {
	source  monitor.Source
	url     *url.URL
	timeout time.Duration
}

func NewHTTPProbe(cfg config.SensorConfig) (*HTTPProbe, error) {
	scheme := "http"
	port := cfg.Port
	if cfg.TLS {
		scheme = "https"
		if port == 0 {
			port = 443
		}
	} else if port == 0 {
		port = 80
	}

	path := cfg.Path
	if path == "" {
		path = "/"
	}

	u, err := url.Parse(fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Address, port, path))
	if err != nil {
		return nil, fmt.Errorf("sensor %q: %w", cfg.Name, err)
	}

	return &HTTPProbe{
		source:  monitor.SensorSource(cfg.Name),
		url:     u,
		timeout: cfg.SensorTimeout(),
	}, nil
}

func (p *HTTPProbe) Source() monitor.Source {
	return p.source
}

func (p *HTTPProbe) Check(ctx context.Context) monitor.Sample {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url.String(), nil)
	if err != nil {
		return unknownSample(p.source, time.Now(), err)
	}
	req.Header.Set("User-Agent", HTTPUserAgent)

	startTime := time.Now()
	resp, err := httpClient.Do(req)
	latency := time.Since(startTime)

	if err != nil {
		return timeoutOr(ctx, monitor.Sample{
			Source:  p.source,
			Time:    startTime,
			Status:  monitor.StatusUnreachable,
			Latency: latency,
			Message: err.Error(),
		})
	}
	resp.Body.Close()

	sample := monitor.Sample{
		Source:  p.source,
		Time:    startTime,
		Latency: latency,
		Metrics: map[string]float64{
			"status_code": float64(resp.StatusCode),
		},
		Message: resp.Status,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sample.Status = monitor.StatusOK
	} else {
		sample.Status = monitor.StatusDegraded
	}

	return timeoutOr(ctx, sample)
}
