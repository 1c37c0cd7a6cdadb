package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lanwatch/lanwatch/internal/schedule"
)

// ErrInvalid wraps every validation failure so callers can treat any
// configuration problem as fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

// Config captures everything lanwatch needs to boot. It is read once at
// startup and never mutated afterwards.
type Config struct {
	WiFi     WiFiConfig     `yaml:"wifi"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Internet InternetConfig `yaml:"internet"`
	Sensors  []SensorConfig `yaml:"sensors"`
	Detector DetectorConfig `yaml:"detector"`
	Store    StoreConfig    `yaml:"store"`
	Report   ReportConfig   `yaml:"report"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WiFiConfig controls the radio link probe and its thresholds.
type WiFiConfig struct {
	Interface string        `yaml:"interface"`
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`

	// RSSIFloor is the signal level in dBm below which the link counts
	// as degraded even while associated.
	RSSIFloor float64 `yaml:"rssiFloor"`

	// QualityFloor is the link quality percentage below which the link
	// counts as degraded.
	QualityFloor float64 `yaml:"qualityFloor"`
}

// GatewayConfig controls the gateway reachability probe.
type GatewayConfig struct {
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`

	// LossCeiling is the packet loss fraction above which the path
	// counts as degraded.
	LossCeiling float64 `yaml:"lossCeiling"`

	// LatencyCeiling is the average round trip above which the path
	// counts as degraded.
	LatencyCeiling time.Duration `yaml:"latencyCeiling"`
}

// InternetConfig controls the internet path probe. The source is healthy
// while any one target answers.
type InternetConfig struct {
	Targets  []string      `yaml:"targets"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`

	LossCeiling    float64       `yaml:"lossCeiling"`
	LatencyCeiling time.Duration `yaml:"latencyCeiling"`
}

// SensorConfig describes one monitored IoT device.
type SensorConfig struct {
	Name     string        `yaml:"name"`
	Address  string        `yaml:"address"`
	Probe    string        `yaml:"probe"` // ping, http, or mqtt
	Port     int           `yaml:"port"`
	Path     string        `yaml:"path"`
	TLS      bool          `yaml:"tls"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DetectorConfig controls debounce behaviour of the state trackers.
type DetectorConfig struct {
	// Confirmations is how many consecutive bad samples a source needs
	// before a SourceIncident opens.
	Confirmations int `yaml:"confirmations"`

	// Recoveries is how many consecutive good samples an abnormal
	// source needs before its SourceIncident closes.
	Recoveries int `yaml:"recoveries"`

	// GapIntervals is how many missed polling intervals after a restart
	// force-close an incident that was persisted as still open.
	GapIntervals int `yaml:"gapIntervals"`
}

// StoreConfig controls the append-only log.
type StoreConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// ReportConfig controls periodic report generation.
type ReportConfig struct {
	OutputDir string `yaml:"outputDir"`

	// Schedule is an interval like "6h" or a cron spec like "0 6 * * *".
	// Empty disables periodic reports; the shutdown report still runs.
	Schedule string        `yaml:"schedule"`
	Window   time.Duration `yaml:"window"`
}

// ServerConfig controls the read-only HTTP endpoint.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration lanwatch starts from before the YAML
// file is applied. Thresholds here are starting points, not policy; every
// one of them can be overridden.
func Default() Config {
	return Config{
		WiFi: WiFiConfig{
			Interface:    "wlan0",
			Interval:     10 * time.Second,
			Timeout:      5 * time.Second,
			RSSIFloor:    -80,
			QualityFloor: 20,
		},
		Gateway: GatewayConfig{
			Interval:       5 * time.Second,
			Timeout:        2 * time.Second,
			LossCeiling:    0.2,
			LatencyCeiling: 500 * time.Millisecond,
		},
		Internet: InternetConfig{
			Targets:        []string{"1.1.1.1", "8.8.8.8"},
			Interval:       15 * time.Second,
			Timeout:        3 * time.Second,
			LossCeiling:    0.5,
			LatencyCeiling: time.Second,
		},
		Detector: DetectorConfig{
			Confirmations: 3,
			Recoveries:    2,
			GapIntervals:  3,
		},
		Store: StoreConfig{
			Path:      "lanwatch.log",
			Retention: 7 * 24 * time.Hour,
		},
		Report: ReportConfig{
			OutputDir: "reports",
			Schedule:  "@daily",
			Window:    24 * time.Hour,
		},
		Server: ServerConfig{
			Port: 9380,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path on top of Default and validates the
// result. Any problem here is fatal; the engine never re-reads config.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides MQTT credentials from the environment so they can be
// kept out of the config file.
func (c *Config) applyEnv() {
	user := os.Getenv("LANWATCH_MQTT_USERNAME")
	pass := os.Getenv("LANWATCH_MQTT_PASSWORD")
	if user == "" && pass == "" {
		return
	}

	for i := range c.Sensors {
		if c.Sensors[i].Probe != "mqtt" {
			continue
		}
		if user != "" {
			c.Sensors[i].Username = user
		}
		if pass != "" {
			c.Sensors[i].Password = pass
		}
	}
}

// Validate checks the fields the engine cannot run without.
func (c Config) Validate() error {
	if c.WiFi.Interface == "" {
		return fmt.Errorf("%w: wifi.interface is required", ErrInvalid)
	}
	if c.Gateway.Address == "" {
		return fmt.Errorf("%w: gateway.address is required", ErrInvalid)
	}
	if len(c.Internet.Targets) == 0 {
		return fmt.Errorf("%w: internet.targets must not be empty", ErrInvalid)
	}
	if c.Detector.Confirmations < 1 {
		return fmt.Errorf("%w: detector.confirmations must be at least 1", ErrInvalid)
	}
	if c.Detector.Recoveries < 1 {
		return fmt.Errorf("%w: detector.recoveries must be at least 1", ErrInvalid)
	}
	if c.Detector.GapIntervals < 1 {
		return fmt.Errorf("%w: detector.gapIntervals must be at least 1", ErrInvalid)
	}
	if c.Report.Schedule != "" {
		if _, err := schedule.Parse(c.Report.Schedule); err != nil {
			return fmt.Errorf("%w: report.schedule: %s", ErrInvalid, err)
		}
	}

	seen := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if s.Name == "" || s.Address == "" {
			return fmt.Errorf("%w: every sensor needs a name and an address", ErrInvalid)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate sensor name %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true

		switch s.Probe {
		case "ping", "http", "mqtt":
		default:
			return fmt.Errorf("%w: sensor %q: unsupported probe %q", ErrInvalid, s.Name, s.Probe)
		}
	}

	return nil
}

// SensorInterval returns the sensor's own interval or the fallback used
// when the inventory omits one.
func (s SensorConfig) SensorInterval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return 30 * time.Second
}

// SensorTimeout returns the sensor's own timeout or the fallback.
func (s SensorConfig) SensorTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 5 * time.Second
}
