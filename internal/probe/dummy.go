package probe

import (
	"context"
	"sync"
	"time"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// DummyProbe replays a scripted sequence of statuses. It exists for
// tests; the last status repeats once the script runs out.
type DummyProbe struct {
	sync.Mutex

	source monitor.Source
	script []monitor.Sample
	cursor int
}

func NewDummyProbe(source monitor.Source, script ...monitor.Sample) *DummyProbe {
	return &DummyProbe{source: source, script: script}
}

func (p *DummyProbe) Source() monitor.Source {
	return p.source
}

func (p *DummyProbe) Check(ctx context.Context) monitor.Sample {
	p.Lock()
	defer p.Unlock()

	if len(p.script) == 0 {
		return monitor.Sample{Source: p.source, Time: time.Now(), Status: monitor.StatusOK}
	}

	s := p.script[p.cursor]
	if p.cursor < len(p.script)-1 {
		p.cursor++
	}

	s.Source = p.source
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	return s
}
