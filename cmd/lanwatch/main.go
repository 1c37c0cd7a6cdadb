package main

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/meta"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/probe"
	"github.com/lanwatch/lanwatch/internal/report"
	"github.com/lanwatch/lanwatch/internal/schedule"
	"github.com/lanwatch/lanwatch/internal/scheduler"
	"github.com/lanwatch/lanwatch/internal/store"
)

func init() {
	probe.HTTPUserAgent = fmt.Sprintf("lanwatch/%s health check", meta.Version)
}

type LanwatchCommand struct {
	OutStream io.Writer
	ErrStream io.Writer

	ConfigPath  string
	StorePath   string
	ListenPort  int
	OneshotMode bool
	ReportMode  bool
	ShowVersion bool
	ShowHelp    bool

	Config config.Config
}

var defaultLanwatchCommand = &LanwatchCommand{
	OutStream: os.Stdout,
	ErrStream: os.Stderr,
}

//go:embed help.txt
var helpText string

func (cmd *LanwatchCommand) PrintUsage(detail bool) {
	tmpl := template.Must(template.New("help.txt").Parse(helpText))
	tmpl.Execute(cmd.ErrStream, map[string]interface{}{
		"Version": meta.Version,
		"Short":   !detail,
	})
}

func (cmd *LanwatchCommand) PrintVersion() {
	fmt.Fprintf(cmd.OutStream, "Lanwatch version %s (%s)\n", meta.Version, meta.Commit)
}

func (cmd *LanwatchCommand) ParseArgs(args []string) (exitCode int) {
	flags := pflag.NewFlagSet("lanwatch", pflag.ContinueOnError)

	flags.StringVarP(&cmd.ConfigPath, "config", "c", "lanwatch.yaml", "Path to configuration file")
	flags.StringVarP(&cmd.StorePath, "log-file", "f", "", "Override the log file path")
	flags.IntVarP(&cmd.ListenPort, "port", "p", 0, "Override the HTTP listen port")
	flags.BoolVarP(&cmd.OneshotMode, "oneshot", "1", false, "Probe every source once and exit")
	flags.BoolVarP(&cmd.ReportMode, "report", "r", false, "Generate a report and exit")
	flags.BoolVarP(&cmd.ShowVersion, "version", "v", false, "Show version")
	flags.BoolVarP(&cmd.ShowHelp, "help", "h", false, "Show help message")

	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintln(cmd.ErrStream, err)
		fmt.Fprintf(cmd.ErrStream, "\nPlease see `%s -h` for more information.\n", args[0])
		return 2
	}

	if cmd.ShowVersion || cmd.ShowHelp {
		return 0
	}

	if cmd.OneshotMode && flags.Changed("port") {
		fmt.Fprintln(cmd.ErrStream, "warning: port option will ignored in the oneshot mode.")
	}
	if cmd.OneshotMode && cmd.ReportMode {
		fmt.Fprintln(cmd.ErrStream, "invalid argument: --oneshot and --report can not be used together.")
		return 2
	}

	return 0
}

// newLogger builds the structured logger. Humans at a terminal get text;
// everything else gets JSON lines.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if f, ok := w.(*os.File); ok && !cfg.JSON && isatty.IsTerminal(f.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// gapLimits computes how long a source may go unobserved before an
// incident persisted across a restart counts as stale.
func gapLimits(cfg config.Config) func(monitor.Source) time.Duration {
	sensors := make(map[string]time.Duration, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		sensors[s.Name] = s.SensorInterval()
	}
	gap := time.Duration(cfg.Detector.GapIntervals)

	return func(src monitor.Source) time.Duration {
		var interval time.Duration
		switch src.Kind {
		case monitor.KindWiFi:
			interval = cfg.WiFi.Interval
		case monitor.KindGateway:
			interval = cfg.Gateway.Interval
		case monitor.KindInternet:
			interval = cfg.Internet.Interval
		case monitor.KindSensor:
			interval = sensors[src.Name]
		}
		if interval <= 0 {
			interval = 30 * time.Second
		}
		return interval * gap
	}
}

// buildTasks turns the configuration into one scheduled task per source.
func buildTasks(cfg config.Config) ([]scheduler.Task, error) {
	tasks := []scheduler.Task{
		{
			Schedule: schedule.IntervalSchedule{Interval: cfg.WiFi.Interval},
			Prober:   probe.NewWiFiProbe(cfg.WiFi),
		},
		{
			Schedule: schedule.IntervalSchedule{Interval: cfg.Gateway.Interval},
			Prober:   probe.NewGatewayProbe(cfg.Gateway),
		},
		{
			Schedule: schedule.IntervalSchedule{Interval: cfg.Internet.Interval},
			Prober:   probe.NewInternetProbe(cfg.Internet),
		},
	}

	for _, sensor := range cfg.Sensors {
		p, err := probe.ForSensor(sensor)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: %w", sensor.Name, err)
		}
		tasks = append(tasks, scheduler.Task{
			Schedule: schedule.IntervalSchedule{Interval: sensor.SensorInterval()},
			Prober:   p,
		})
	}

	return tasks, nil
}

func (cmd *LanwatchCommand) Run(args []string) (exitCode int) {
	if code := cmd.ParseArgs(args); code != 0 {
		return code
	}

	if cmd.ShowVersion {
		cmd.PrintVersion()
		return 0
	}
	if cmd.ShowHelp {
		cmd.PrintUsage(true)
		return 0
	}

	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}
	if cmd.StorePath != "" {
		cfg.Store.Path = cmd.StorePath
	}
	if cmd.ListenPort != 0 {
		cfg.Server.Port = cmd.ListenPort
	}
	cmd.Config = cfg

	logger := newLogger(cmd.ErrStream, cfg.Logging)

	if cmd.OneshotMode {
		return cmd.RunOneshot(logger)
	}

	s, err := store.New(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: failed to open log file: %s\n", err)
		return 1
	}

	if cmd.ReportMode {
		exitCode = cmd.RunReport(s, logger)
	} else {
		exitCode = cmd.RunServer(s, logger)
	}

	s.Close()

	healthy, _ := s.Errors()
	if exitCode == 0 && !healthy {
		return 1
	}
	return exitCode
}

func (cmd *LanwatchCommand) RunReport(s *store.Store, logger *slog.Logger) (exitCode int) {
	g := report.NewGenerator(s, cmd.Config, logger)
	path, err := g.Generate(time.Now())
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 1
	}
	fmt.Fprintln(cmd.OutStream, path)
	return 0
}

func main() {
	os.Exit(defaultLanwatchCommand.Run(os.Args))
}
