package monitor

import (
	"fmt"
	"strings"
)

// Kind is the category of a monitored signal.
type Kind string

const (
	KindWiFi     Kind = "wifi"
	KindGateway  Kind = "gateway"
	KindInternet Kind = "internet"
	KindSensor   Kind = "sensor"
)

// Source identifies one monitored signal: the WiFi link, the gateway,
// the internet path, or a single named sensor.
type Source struct {
	Kind Kind

	// Name is the sensor name. It is empty for every other kind.
	Name string
}

// WiFiSource is the source of the local radio link.
func WiFiSource() Source { return Source{Kind: KindWiFi} }

// GatewaySource is the source of gateway reachability.
func GatewaySource() Source { return Source{Kind: KindGateway} }

// InternetSource is the source of internet reachability.
func InternetSource() Source { return Source{Kind: KindInternet} }

// SensorSource is the source of a single sensor's reachability.
func SensorSource(name string) Source {
	return Source{Kind: KindSensor, Name: name}
}

// ParseSource parses the string form produced by Source.String.
func ParseSource(raw string) (Source, error) {
	if kind, name, ok := strings.Cut(raw, ":"); ok {
		if Kind(kind) != KindSensor || name == "" {
			return Source{}, fmt.Errorf("invalid source: %q", raw)
		}
		return SensorSource(name), nil
	}

	switch Kind(raw) {
	case KindWiFi, KindGateway, KindInternet:
		return Source{Kind: Kind(raw)}, nil
	default:
		return Source{}, fmt.Errorf("invalid source: %q", raw)
	}
}

func (s Source) String() string {
	if s.Kind == KindSensor {
		return string(KindSensor) + ":" + s.Name
	}
	return string(s.Kind)
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
