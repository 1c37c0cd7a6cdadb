package endpoint

import (
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanwatch/lanwatch/internal/meta"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/store"
)

// Store is the part of the log store the endpoints read from.
type Store interface {
	LastSamples() []monitor.Sample
	OpenIncidents() []*monitor.Incident
	ScanSince(time.Time) (store.Snapshot, error)
	Errors() (healthy bool, messages []string)
}

// New builds the read-only HTTP handler.
func New(s Store, reg *prometheus.Registry) http.Handler {
	m := http.NewServeMux()

	m.Handle("/status", http.RedirectHandler("/status.json", http.StatusMovedPermanently))
	m.HandleFunc("/status.json", StatusJSONEndpoint(s))

	m.Handle("/incidents", http.RedirectHandler("/incidents.json", http.StatusMovedPermanently))
	m.HandleFunc("/incidents.json", IncidentsJSONEndpoint(s))

	m.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m.HandleFunc("/healthz", HealthzEndpoint(s))

	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/status.json", http.StatusFound)
		} else {
			http.NotFound(w, r)
		}
	})

	return gziphandler.GzipHandler(m)
}

type statusReport struct {
	Version       string              `json:"version"`
	ReportedAt    time.Time           `json:"reported_at"`
	Sources       []monitor.Sample    `json:"sources"`
	OpenIncidents []*monitor.Incident `json:"open_incidents"`
}

// StatusJSONEndpoint is the http.HandlerFunc for the /status.json page.
// It reports the newest sample of every source and the open incidents.
func StatusJSONEndpoint(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")

		open := s.OpenIncidents()
		if open == nil {
			open = []*monitor.Incident{}
		}

		json.NewEncoder(w).Encode(statusReport{
			Version:       meta.Version,
			ReportedAt:    time.Now(),
			Sources:       s.LastSamples(),
			OpenIncidents: open,
		})
	}
}

type incidentsReport struct {
	Since     time.Time          `json:"since"`
	Incidents []monitor.Incident `json:"incidents"`
}

// IncidentsJSONEndpoint is the http.HandlerFunc for the /incidents.json
// page. It reports every incident of the last 24 hours, open ones
// included, in their final known state.
func IncidentsJSONEndpoint(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")

		since := time.Now().Add(-24 * time.Hour)
		snap, err := s.ScanSince(since)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if snap.Incidents == nil {
			snap.Incidents = []monitor.Incident{}
		}

		json.NewEncoder(w).Encode(incidentsReport{
			Since:     since,
			Incidents: snap.Incidents,
		})
	}
}

// HealthzEndpoint is the http.HandlerFunc for the /healthz page.
func HealthzEndpoint(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")

		healthy, messages := s.Errors()

		if healthy {
			fmt.Fprintln(w, "HEALTHY")
		} else {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, "FAILURE")
		}

		for _, msg := range messages {
			fmt.Fprintln(w, msg)
		}
	}
}
