package monitor_test

import (
	"testing"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		Input  string
		Output monitor.Source
		Error  bool
	}{
		{"wifi", monitor.WiFiSource(), false},
		{"gateway", monitor.GatewaySource(), false},
		{"internet", monitor.InternetSource(), false},
		{"sensor:kitchen", monitor.SensorSource("kitchen"), false},
		{"sensor:", monitor.Source{}, true},
		{"wifi:something", monitor.Source{}, true},
		{"router", monitor.Source{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.Input, func(t *testing.T) {
			s, err := monitor.ParseSource(tt.Input)
			if (err != nil) != tt.Error {
				t.Fatalf("unexpected error: %v", err)
			}
			if err == nil && s != tt.Output {
				t.Errorf("expected %v but got %v", tt.Output, s)
			}
			if err == nil && s.String() != tt.Input {
				t.Errorf("round trip broken: %q became %q", tt.Input, s.String())
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, tt := range []struct {
		Input  string
		Output monitor.Status
	}{
		{"ok", monitor.StatusOK},
		{"degraded", monitor.StatusDegraded},
		{"unreachable", monitor.StatusUnreachable},
		{"unknown", monitor.StatusUnknown},
		{"HEALTHY", monitor.StatusUnknown},
	} {
		if s := monitor.ParseStatus(tt.Input); s != tt.Output {
			t.Errorf("%q: expected %s but got %s", tt.Input, tt.Output, s)
		}
	}
}
