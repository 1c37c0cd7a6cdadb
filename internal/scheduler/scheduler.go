package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lanwatch/lanwatch/internal/metrics"
	"github.com/lanwatch/lanwatch/internal/monitor"
	"github.com/lanwatch/lanwatch/internal/probe"
	"github.com/lanwatch/lanwatch/internal/schedule"
)

// Task pairs a prober with its polling schedule.
type Task struct {
	Schedule schedule.Schedule
	Prober   probe.Prober
}

// Scheduler runs every task on its own schedule and merges the samples
// into one channel. A slow, broken, or panicking probe only ever costs
// its own source a sample; it can not block the others.
type Scheduler struct {
	cron   *cron.Cron
	ch     chan monitor.Sample
	tasks  []Task
	kicked sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		ch:   make(chan monitor.Sample, 64),
	}
}

// Samples is the merged, arrival-ordered sample stream. It is never
// closed; consumers stop on their own context.
func (s *Scheduler) Samples() <-chan monitor.Sample {
	return s.ch
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Start kicks interval tasks once immediately, then lets cron take over.
// It returns after scheduling; the probes run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		job := s.makeJob(ctx, t)

		if t.Schedule.NeedKickWhenStart() {
			s.kicked.Add(1)
			go func() {
				defer s.kicked.Done()
				job.Run()
			}()
		}

		s.cron.Schedule(t.Schedule, job)
	}

	s.cron.Start()
}

// Wait blocks until every running job has finished after cancellation.
func (s *Scheduler) Wait() {
	<-s.cron.Stop().Done()
	s.kicked.Wait()
}

func (s *Scheduler) makeJob(ctx context.Context, t Task) cron.Job {
	var running sync.Mutex

	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}

		// A probe that overruns its interval must not pile up on itself.
		if !running.TryLock() {
			return
		}
		defer running.Unlock()

		defer func() {
			if err := recover(); err != nil {
				s.send(ctx, monitor.Sample{
					Source:  t.Prober.Source(),
					Time:    time.Now(),
					Status:  monitor.StatusUnknown,
					Message: fmt.Sprintf("probe panicked: %v", err),
				})
			}
		}()

		startTime := time.Now()
		sample := t.Prober.Check(ctx)
		metrics.ObserveProbe(t.Prober.Source().Kind, time.Since(startTime))

		if sample.Time.IsZero() {
			sample.Time = startTime
		}
		s.send(ctx, sample)
	})
}

func (s *Scheduler) send(ctx context.Context, sample monitor.Sample) {
	select {
	case s.ch <- sample:
	case <-ctx.Done():
	}
}
