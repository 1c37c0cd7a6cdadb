package store

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// RECENT_SAMPLES_LEN is how many samples per source stay in memory for
// the status endpoint.
const RECENT_SAMPLES_LEN = 60

const (
	kindSample         = "sample"
	kindSourceIncident = "source_incident"
	kindIncident       = "incident"
)

// record is one line of the append-only log.
type record struct {
	Kind      string                  `json:"kind"`
	Time      time.Time               `json:"time"`
	Lifecycle monitor.Lifecycle       `json:"lifecycle,omitempty"`
	Sample    *monitor.Sample         `json:"sample,omitempty"`
	Span      *monitor.SourceIncident `json:"span,omitempty"`
	Incident  *monitor.Incident       `json:"incident,omitempty"`
}

// Store is the append-only log of everything lanwatch observes and
// decides. One JSON record per line; the file is the database, and the
// in-memory side only keeps what the HTTP endpoint needs.
type Store struct {
	path string

	historyLock sync.RWMutex
	recent      map[monitor.Source][]monitor.Sample
	open        []*monitor.Incident

	fileLock      sync.Mutex
	writeCh       chan<- record
	writerStopped chan struct{}

	errorsLock sync.RWMutex
	errors     []string
	healthy    bool
}

func New(path string) (*Store, error) {
	ch := make(chan record, 32)

	s := &Store{
		path:          path,
		recent:        make(map[monitor.Source][]monitor.Sample),
		writeCh:       ch,
		writerStopped: make(chan struct{}),
		healthy:       true,
	}

	if s.path != "" {
		f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			close(ch)
			return nil, err
		}
		f.Close()
	}

	go s.writer(ch, s.writerStopped)

	return s, nil
}

// Path returns the path to the log file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	close(s.writeCh)
	<-s.writerStopped
	return nil
}

func (s *Store) writer(ch <-chan record, stopped chan struct{}) {
	for r := range ch {
		if s.path == "" {
			continue
		}

		line, err := json.Marshal(r)
		if err != nil {
			s.addError(fmt.Sprintf("failed to encode record: %s", err))
			continue
		}
		line = append(line, '\n')

		s.append(line)
	}

	close(stopped)
}

func (s *Store) append(line []byte) {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		s.addError(fmt.Sprintf("failed to open log file: %s", err))
		return
	}

	if _, err := f.Write(line); err != nil {
		s.addError(fmt.Sprintf("failed to write log file: %s", err))
	} else {
		s.setHealthy()
	}

	if err := f.Close(); err != nil {
		s.addError(fmt.Sprintf("failed to close log file: %s", err))
	}
}

// RecordSample appends one sample and remembers it for the endpoint.
func (s *Store) RecordSample(sample monitor.Sample) error {
	s.writeCh <- record{Kind: kindSample, Time: sample.Time, Sample: &sample}

	s.historyLock.Lock()
	defer s.historyLock.Unlock()
	s.appendRecent(sample)

	return nil
}

// RecordSourceIncident appends the span's current state. It is written
// once when it opens, on each escalation, and once more when it closes.
func (s *Store) RecordSourceIncident(si *monitor.SourceIncident) error {
	copied := *si
	t := copied.StartedAt
	if !copied.EndedAt.IsZero() {
		t = copied.EndedAt
	}
	s.writeCh <- record{Kind: kindSourceIncident, Time: t, Span: &copied}
	return nil
}

// RecordIncident appends one incident lifecycle step and keeps the open
// set current for the endpoint.
func (s *Store) RecordIncident(l monitor.Lifecycle, inc *monitor.Incident) error {
	copied := snapshotIncident(inc)
	t := copied.StartedAt
	if !copied.EndedAt.IsZero() {
		t = copied.EndedAt
	}
	s.writeCh <- record{Kind: kindIncident, Time: t, Lifecycle: l, Incident: copied}

	s.historyLock.Lock()
	defer s.historyLock.Unlock()

	for i, open := range s.open {
		if open.ID == copied.ID {
			if l == monitor.LifecycleClosed {
				s.open = append(s.open[:i], s.open[i+1:]...)
			} else {
				s.open[i] = copied
			}
			return nil
		}
	}
	if l != monitor.LifecycleClosed {
		s.open = append(s.open, copied)
	}
	return nil
}

// LastSamples returns the newest sample of every known source, sorted by
// source name.
func (s *Store) LastSamples() []monitor.Sample {
	s.historyLock.RLock()
	defer s.historyLock.RUnlock()

	result := make([]monitor.Sample, 0, len(s.recent))
	for _, history := range s.recent {
		result = append(result, history[len(history)-1])
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Source.String() < result[j].Source.String()
	})
	return result
}

// RecentSamples returns the in-memory history of one source, oldest
// first.
func (s *Store) RecentSamples(source monitor.Source) []monitor.Sample {
	s.historyLock.RLock()
	defer s.historyLock.RUnlock()

	return append([]monitor.Sample(nil), s.recent[source]...)
}

// OpenIncidents returns the incidents that have not closed yet.
func (s *Store) OpenIncidents() []*monitor.Incident {
	s.historyLock.RLock()
	defer s.historyLock.RUnlock()

	return append([]*monitor.Incident(nil), s.open...)
}

// Errors returns the store health and recent write errors for /healthz.
func (s *Store) Errors() (healthy bool, messages []string) {
	s.errorsLock.RLock()
	defer s.errorsLock.RUnlock()

	return s.healthy, s.errors
}

func (s *Store) appendRecent(sample monitor.Sample) {
	history := append(s.recent[sample.Source], sample)
	if len(history) > RECENT_SAMPLES_LEN {
		history = history[len(history)-RECENT_SAMPLES_LEN:]
	}
	s.recent[sample.Source] = history
}

func (s *Store) setHealthy() {
	s.errorsLock.Lock()
	defer s.errorsLock.Unlock()

	s.healthy = true
}

func (s *Store) addError(message string) {
	s.errorsLock.Lock()
	defer s.errorsLock.Unlock()

	s.healthy = false
	s.errors = append(
		s.errors,
		fmt.Sprintf("%s\t%s", time.Now().Format(time.RFC3339), message),
	)

	if len(s.errors) > 10 {
		s.errors = s.errors[1:]
	}
}

func snapshotIncident(inc *monitor.Incident) *monitor.Incident {
	copied := *inc
	copied.Affected = append([]monitor.Source(nil), inc.Affected...)
	copied.Contributing = make([]*monitor.SourceIncident, len(inc.Contributing))
	for i, si := range inc.Contributing {
		span := *si
		copied.Contributing[i] = &span
	}
	return &copied
}

// scan reads the log file line by line. Lines that do not parse are
// skipped; a log that was cut short by a crash must not poison the rest.
func (s *Store) scan(handle func(record)) error {
	if s.path == "" {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		handle(r)
	}
	return scanner.Err()
}
