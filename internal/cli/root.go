// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the ehrsync command-line client.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Blaqmann/ehr-system/ehrclient"
	"github.com/Blaqmann/ehr-system/internal/config"
	"github.com/Blaqmann/ehr-system/internal/logging"
	"github.com/Blaqmann/ehr-system/offline"
)

// app bundles the wired engine for one CLI invocation.
type app struct {
	cfg         *config.Client
	logger      *slog.Logger
	queue       *offline.Queue
	probe       *offline.HTTPProbe
	monitor     *offline.Monitor
	router      *offline.Router
	merger      *offline.Merger
	coordinator *offline.Coordinator
}

// newApp wires queue, probe, monitor, router, merger and coordinator from
// configuration. The probe is checked once so the monitor starts from the
// real connectivity state rather than assuming offline.
func newApp(ctx context.Context) *app {
	cfg := config.LoadClient()
	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	store := ehrclient.New(cfg.ServerURL, func(context.Context) (string, error) {
		return cfg.Token, nil
	}, logger)

	queue := offline.NewQueue(cfg.QueuePath, logger)
	probe := offline.NewHTTPProbe(cfg.ServerURL+"/healthz", cfg.ProbeInterval, logger)
	probe.CheckNow(ctx)
	monitor := offline.NewMonitor(probe, logger)
	router := offline.NewRouter(queue, monitor, store, logger)
	merger := offline.NewMerger(queue, monitor, store, logger)
	coordinator := offline.NewCoordinator(queue, monitor, router, logger,
		offline.DrainRecorderFunc(func(_ context.Context, stats offline.DrainStats) {
			logger.Debug("drain observed",
				"attempted", stats.Attempted, "delivered", stats.Delivered,
				"failed", stats.Failed, "skipped", stats.Skipped)
		}))

	return &app{
		cfg:         cfg,
		logger:      logger,
		queue:       queue,
		probe:       probe,
		monitor:     monitor,
		router:      router,
		merger:      merger,
		coordinator: coordinator,
	}
}

func (a *app) close() {
	a.monitor.Close()
	_ = a.queue.Close()
}

// NewRootCommand builds the ehrsync command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ehrsync",
		Short:         "Offline-first EHR record client",
		Long:          "ehrsync captures clinical records locally while offline and reconciles them with the remote store once connectivity returns.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRecordCommand())
	root.AddCommand(newSyncCommand())
	root.AddCommand(newStatusCommand())
	return root
}
