// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver pending offline records to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := newApp(ctx)
			defer a.close()

			if !a.monitor.Online() {
				color.Red("offline: cannot reach %s", a.cfg.ServerURL)
				return nil
			}

			count, err := a.coordinator.Drain(ctx)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Println("nothing to sync")
				return nil
			}
			color.Green("%d record(s) synced", count)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and pending queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := newApp(ctx)
			defer a.close()

			if a.monitor.Online() {
				color.Green("online (%s)", a.cfg.ServerURL)
			} else {
				color.Red("offline (%s unreachable)", a.cfg.ServerURL)
			}

			pending, err := a.queue.ListAllPending(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("pending writes: %d\n", len(pending))
			for _, qw := range pending {
				fmt.Printf("  %s  %s  patient=%s  queued=%s\n",
					qw.ID, qw.Type, qw.PatientID, qw.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
