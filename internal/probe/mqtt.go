package probe

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/monitor"
)

// MQTTProbe checks a sensor's broker by completing a CONNECT handshake.
// Many battery powered devices only ever speak MQTT, so this is the
// closest thing to asking them directly.
type MQTTProbe struct {
	source   monitor.Source
	broker   string
	username string
	password string
	timeout  time.Duration
}

func NewMQTTProbe(cfg config.SensorConfig) *MQTTProbe {
	scheme := "tcp"
	port := cfg.Port
	if cfg.TLS {
		scheme = "ssl"
		if port == 0 {
			port = 8883
		}
	} else if port == 0 {
		port = 1883
	}

	return &MQTTProbe{
		source:   monitor.SensorSource(cfg.Name),
		broker:   fmt.Sprintf("%s://%s:%d", scheme, cfg.Address, port),
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.SensorTimeout(),
	}
}

func (p *MQTTProbe) Source() monitor.Source {
	return p.source
}

func (p *MQTTProbe) Check(ctx context.Context) monitor.Sample {
	timeout := p.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.broker).
		SetClientID("lanwatch-" + p.source.Name).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false)
	if p.username != "" {
		opts.SetUsername(p.username)
	}
	if p.password != "" {
		opts.SetPassword(p.password)
	}

	client := mqtt.NewClient(opts)
	defer client.Disconnect(250)

	startTime := time.Now()
	token := client.Connect()

	if !token.WaitTimeout(timeout) {
		return timeoutOr(ctx, monitor.Sample{
			Source:  p.source,
			Time:    startTime,
			Status:  monitor.StatusUnreachable,
			Latency: time.Since(startTime),
			Message: "CONNACK did not arrive in time",
		})
	}

	latency := time.Since(startTime)

	if err := token.Error(); err != nil {
		return timeoutOr(ctx, monitor.Sample{
			Source:  p.source,
			Time:    startTime,
			Status:  monitor.StatusUnreachable,
			Latency: latency,
			Message: err.Error(),
		})
	}

	return timeoutOr(ctx, monitor.Sample{
		Source:  p.source,
		Time:    startTime,
		Status:  monitor.StatusOK,
		Latency: latency,
		Metrics: map[string]float64{
			"connect_ms": float64(latency.Microseconds()) / 1000,
		},
		Message: "broker accepted connection",
	})
}
