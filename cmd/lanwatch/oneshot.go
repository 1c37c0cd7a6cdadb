package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/lanwatch/lanwatch/internal/monitor"
)

// RunOneshot probes every configured source exactly once, prints one JSON
// line per result, and exits non-zero if anything is not OK.
func (cmd *LanwatchCommand) RunOneshot(logger *slog.Logger) (exitCode int) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tasks, err := buildTasks(cmd.Config)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	samples := make([]monitor.Sample, len(tasks))

	var wg sync.WaitGroup
	for i, t := range tasks {
		i, t := i, t
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples[i] = t.Prober.Check(ctx)
		}()
	}
	wg.Wait()

	enc := json.NewEncoder(cmd.OutStream)
	for _, s := range samples {
		if err := enc.Encode(s); err != nil {
			logger.Error("failed to encode sample", "error", err)
		}
		if s.Status != monitor.StatusOK {
			exitCode = 1
		}
	}

	return exitCode
}
