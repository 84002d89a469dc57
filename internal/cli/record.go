// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Blaqmann/ehr-system/offline"
)

// recordTypeUsage builds the --type flag help from the known record types, so
// the CLI stays in step when a type is added.
func recordTypeUsage() string {
	names := make([]string, 0, len(offline.RecordTypes()))
	for _, t := range offline.RecordTypes() {
		names = append(names, t.String())
	}
	return "record type: " + strings.Join(names, ", ") + " (required)"
}

func newRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Create and list clinical records",
	}
	cmd.AddCommand(newRecordAddCommand())
	cmd.AddCommand(newRecordListCommand())
	return cmd
}

func newRecordAddCommand() *cobra.Command {
	var (
		patientID  string
		recordType string
		data       string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Submit a clinical record (queued locally when offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := offline.ParseRecordType(recordType)
			if err != nil {
				return err
			}

			var payload offline.Payload
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return fmt.Errorf("invalid --data JSON: %w", err)
			}

			ctx := cmd.Context()
			a := newApp(ctx)
			defer a.close()

			result, err := a.router.Submit(ctx, t, patientID, payload)
			if err != nil {
				return err
			}

			if result.Queued {
				color.Yellow("saved offline (queue id %s); will sync when connectivity returns", result.QueueID)
			} else {
				color.Green("saved (remote id %s)", result.RemoteID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "patient id (required)")
	cmd.Flags().StringVarP(&recordType, "type", "t", "", recordTypeUsage())
	cmd.Flags().StringVarP(&data, "data", "d", "", "record payload as JSON (required)")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newRecordListCommand() *cobra.Command {
	var (
		patientID  string
		recordType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the merged remote and pending-local view for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := offline.ParseRecordType(recordType)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a := newApp(ctx)
			defer a.close()

			records, err := a.merger.ReadAll(ctx, t, patientID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no records")
				return nil
			}

			for _, rec := range records {
				body, _ := json.Marshal(rec.Payload)
				if rec.Offline {
					color.Yellow("%s  [offline]  %s", rec.CreatedAt.Format("2006-01-02 15:04"), body)
				} else {
					fmt.Printf("%s  %s\n", rec.CreatedAt.Format("2006-01-02 15:04"), body)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "patient id (required)")
	cmd.Flags().StringVarP(&recordType, "type", "t", "", recordTypeUsage())
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
