package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/lanwatch/lanwatch/internal/endpoint"
	"github.com/lanwatch/lanwatch/internal/engine"
	"github.com/lanwatch/lanwatch/internal/meta"
	"github.com/lanwatch/lanwatch/internal/metrics"
	"github.com/lanwatch/lanwatch/internal/report"
	"github.com/lanwatch/lanwatch/internal/schedule"
	"github.com/lanwatch/lanwatch/internal/scheduler"
	"github.com/lanwatch/lanwatch/internal/store"
)

func (cmd *LanwatchCommand) RunServer(s *store.Store, logger *slog.Logger) (exitCode int) {
	cfg := cmd.Config

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resumed, err := s.Restore(time.Now(), gapLimits(cfg))
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: failed to read log file: %s\n", err)
		return 1
	}

	detector := engine.NewDetector(cfg, s, logger)
	detector.Adopt(resumed)

	tasks, err := buildTasks(cfg)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: failed to register metrics: %s\n", err)
		return 1
	}

	logger.Info("starting lanwatch",
		"version", meta.Version, "commit", meta.Commit,
		"interface", cfg.WiFi.Interface, "sensors", len(cfg.Sensors),
		"port", cfg.Server.Port)

	sched := scheduler.New()
	for _, t := range tasks {
		sched.Add(t)
	}
	sched.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		detector.Run(ctx, sched.Samples())
	}()

	maintenance := cmd.startMaintenance(s, logger)

	listen := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	srv := &http.Server{Addr: listen, Handler: endpoint.New(s, reg)}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("HTTP server failed", "error", err)
		exitCode = 1
	}
	stop()

	sched.Wait()
	wg.Wait()
	<-maintenance.Stop().Done()

	// One last report so a crash-free shutdown leaves a summary behind.
	if cfg.Report.OutputDir != "" {
		if _, err := report.NewGenerator(s, cfg, logger).Generate(time.Now()); err != nil {
			logger.Error("failed to generate final report", "error", err)
		}
	}

	logger.Info("lanwatch stopped")
	return exitCode
}

// startMaintenance schedules the periodic report and the log retention
// trim on their own cron, separate from the probe scheduler.
func (cmd *LanwatchCommand) startMaintenance(s *store.Store, logger *slog.Logger) *cron.Cron {
	cfg := cmd.Config
	c := cron.New()

	if cfg.Report.Schedule != "" && cfg.Report.OutputDir != "" {
		// Validated at startup; an interval spec or a cron spec both work.
		sched, err := schedule.Parse(cfg.Report.Schedule)
		if err != nil {
			logger.Error("invalid report schedule", "schedule", cfg.Report.Schedule, "error", err)
		} else {
			g := report.NewGenerator(s, cfg, logger)
			c.Schedule(sched, cron.FuncJob(func() {
				if _, err := g.Generate(time.Now()); err != nil {
					logger.Error("failed to generate report", "error", err)
				}
			}))
		}
	}

	if cfg.Store.Retention > 0 {
		c.Schedule(schedule.IntervalSchedule{Interval: time.Hour}, cron.FuncJob(func() {
			if err := s.Trim(time.Now().Add(-cfg.Store.Retention)); err != nil {
				logger.Error("failed to trim log file", "error", err)
			}
		}))
	}

	c.Start()
	return c
}
