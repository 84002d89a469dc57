// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Attempted int
	Delivered int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// DrainRecorder observes completed drain passes (metrics hook).
type DrainRecorder interface {
	ObserveDrain(ctx context.Context, stats DrainStats)
}

// DrainRecorderFunc adapts a function to the DrainRecorder interface.
type DrainRecorderFunc func(ctx context.Context, stats DrainStats)

func (f DrainRecorderFunc) ObserveDrain(ctx context.Context, stats DrainStats) { f(ctx, stats) }

// Coordinator drains the offline queue against the remote store whenever
// connectivity is available. One entry's failure never aborts the batch, and
// re-invocation after a partial failure only touches the entries still
// unsynced.
type Coordinator struct {
	queue    *Queue
	monitor  *Monitor
	router   *Router
	logger   *slog.Logger
	recorder DrainRecorder

	// drainMu serializes drain passes within the process. The becameOnline
	// signal and a user's manual trigger can race; the second caller simply
	// finds nothing left to deliver.
	drainMu sync.Mutex
}

// NewCoordinator creates a sync coordinator. recorder may be nil.
func NewCoordinator(queue *Queue, monitor *Monitor, router *Router, logger *slog.Logger, recorder DrainRecorder) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		queue:    queue,
		monitor:  monitor,
		router:   router,
		logger:   logger,
		recorder: recorder,
	}
}

// Start registers the automatic drain trigger on the monitor's becameOnline
// edge. Each edge kicks off one drain pass on its own goroutine; errors are
// logged, not surfaced, since there is no caller to receive them.
func (c *Coordinator) Start(ctx context.Context) {
	c.monitor.OnBecameOnline(func() {
		go func() {
			if _, err := c.Drain(ctx); err != nil {
				c.logger.Error("automatic drain failed", "error", err)
			}
		}()
	})
}

// Drain attempts delivery of every unsynced queue entry and returns how many
// transitioned to synced during this call. It returns 0 immediately when the
// monitor reports offline. Each entry's synced flag is re-checked right
// before its write; in the narrow window between that check and the remote
// create a concurrent writer could still deliver the same record twice to
// the remote store (see DESIGN.md).
func (c *Coordinator) Drain(ctx context.Context) (int, error) {
	if !c.monitor.Online() {
		return 0, nil
	}

	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	start := time.Now()
	pending, err := c.queue.ListAllPending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		c.logger.Debug("nothing to sync")
		return 0, nil
	}

	c.logger.Info("draining offline queue", "pending", len(pending))

	stats := DrainStats{Attempted: len(pending)}
	for _, qw := range pending {
		stillPending, err := c.queue.Pending(ctx, qw.ID)
		if err != nil {
			stats.Failed++
			c.logger.Error("failed to re-check pending state, skipping entry",
				"queue_id", qw.ID, "error", err)
			continue
		}
		if !stillPending {
			stats.Skipped++
			continue
		}

		if _, err := c.router.deliver(ctx, qw.Type, qw.PatientID, qw.Payload, qw.CreatedAt, qw.ID); err != nil {
			stats.Failed++
			c.logger.Warn("failed to deliver queued write, will retry on next drain",
				"queue_id", qw.ID, "type", qw.Type.String(),
				"patient_id", qw.PatientID, "error", err)
			continue
		}

		if err := c.queue.MarkSynced(ctx, qw.ID); err != nil {
			stats.Failed++
			c.logger.Error("delivered but failed to mark synced",
				"queue_id", qw.ID, "error", err)
			continue
		}
		stats.Delivered++
	}

	stats.Duration = time.Since(start)
	if c.recorder != nil {
		c.recorder.ObserveDrain(ctx, stats)
	}
	c.logger.Info("drain complete",
		"delivered", stats.Delivered, "failed", stats.Failed,
		"skipped", stats.Skipped, "duration", stats.Duration)
	return stats.Delivered, nil
}
