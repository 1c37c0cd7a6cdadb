package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lanwatch/lanwatch/internal/config"
	"github.com/lanwatch/lanwatch/internal/store"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"timefmt": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
	"duration": formatDuration,
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
}).Parse(`# Network Health Report

Period: {{timefmt .Start}} to {{timefmt .End}}
Generated: {{timefmt .GeneratedAt}}

## Summary

- WiFi uptime: {{printf "%.1f" .WiFi.UptimePercent}}% over {{comma .WiFi.Checks}} checks (grade {{.WiFi.Grade}}, {{.WiFi.Rating}})
{{- if .WiFi.HasRSSI}}
- Average signal: {{printf "%.0f" .WiFi.AvgRSSI}} dBm ({{.WiFi.Quality}})
{{- end}}
- Incidents: {{len .Incidents}}
- Total downtime: {{duration .TotalDowntime}}
{{- if .Incidents}}
- Mean time between incidents: {{duration .MTBF}}
{{- end}}
{{- if .MostAffected}}
- Most affected source: {{.MostAffected}} ({{duration .MostAffectedDowntime}} inside incidents)
{{- end}}

## Connectivity

| Path | Checks | Unreachable | Avg loss | Avg latency |
|------|-------:|------------:|---------:|------------:|
| gateway | {{comma .Gateway.Checks}} | {{printf "%.1f" .Gateway.FailurePercent}}% | {{printf "%.1f" .Gateway.AvgLossPercent}}% | {{printf "%.1f" .Gateway.AvgLatencyMS}} ms |
| internet | {{comma .Internet.Checks}} | {{printf "%.1f" .Internet.FailurePercent}}% | {{printf "%.1f" .Internet.AvgLossPercent}}% | {{printf "%.1f" .Internet.AvgLatencyMS}} ms |

## Sensors
{{if .Sensors}}
| Sensor | Address | Availability | Avg latency | Status |
|--------|---------|-------------:|------------:|--------|
{{- range .Sensors}}
| {{.Name}} | {{.Address}} | {{printf "%.1f" .AvailabilityPercent}}% | {{printf "%.1f" .AvgLatencyMS}} ms | {{.Status}} |
{{- end}}
{{else}}
No sensors configured.
{{end}}
## Incidents
{{if .Incidents}}
{{- range .Incidents}}
- {{timefmt .Incident.StartedAt}} {{.Incident.Type}} ({{.Severity}}) lasting {{duration .Duration}}, {{len .Incident.Affected}} source(s) affected{{if .Incident.Open}}, still open{{end}}
{{- end}}

By type:
{{range $type, $count := .ByType}}- {{$type}}: {{$count}}
{{end}}
{{- else}}
No incidents in this window.
{{end}}
## Recommendations
{{range .Recommendations}}
- {{.}}
{{- end}}
`))

// Render writes the Markdown report for one analysis.
func Render(w io.Writer, a *Analysis) error {
	return reportTemplate.Execute(w, a)
}

func formatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// Generator produces periodic reports from the store.
type Generator struct {
	store  *store.Store
	cfg    config.Config
	logger *slog.Logger
}

func NewGenerator(s *store.Store, cfg config.Config, logger *slog.Logger) *Generator {
	return &Generator{store: s, cfg: cfg, logger: logger}
}

// Generate analyzes the configured window ending now and writes one
// report file. It returns the path of the written report.
func (g *Generator) Generate(now time.Time) (string, error) {
	start := now.Add(-g.cfg.Report.Window)

	snap, err := g.store.ScanSince(start)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	a := Analyze(snap, g.cfg, start, now)

	if err := os.MkdirAll(g.cfg.Report.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}

	path := filepath.Join(g.cfg.Report.OutputDir, "lanwatch-"+now.Format("20060102-150405")+".md")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}

	renderErr := Render(f, a)
	if err := f.Close(); renderErr == nil {
		renderErr = err
	}
	if renderErr != nil {
		return "", fmt.Errorf("generate report: %w", renderErr)
	}

	g.logger.Info("report generated",
		"path", path, "incidents", len(a.Incidents),
		"wifi_uptime", fmt.Sprintf("%.1f%%", a.WiFi.UptimePercent))
	return path, nil
}
