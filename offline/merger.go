// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import (
	"context"
	"log/slog"
)

// Merger composes the read-time union of remote records and still-pending
// local queue entries. It owns no data and never mutates either side.
type Merger struct {
	queue   *Queue
	monitor *Monitor
	store   RemoteStore
	logger  *slog.Logger
}

// NewMerger creates a read merger over the given queue and remote store.
func NewMerger(queue *Queue, monitor *Monitor, store RemoteStore, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{queue: queue, monitor: monitor, store: store, logger: logger}
}

// ReadAll returns the union of remote records (Offline=false) and unsynced
// queue entries (Offline=true) for one patient and record type. Queued
// entries appear immediately after Submit, before any sync has run, so a user
// always sees their own offline write. While offline, or when the remote list
// fails during an offline stretch, the read degrades to the pending-local
// view; likewise a queue read failure degrades to the remote-only view.
// Reads only fail outright on a remote fault while connectivity is believed
// up.
func (m *Merger) ReadAll(ctx context.Context, t RecordType, patientID string) ([]MergedRecord, error) {
	var remote []RemoteRecord
	if m.monitor.Online() {
		var err error
		remote, err = m.store.ListByPatient(ctx, patientID, t)
		if err != nil {
			if m.monitor.Online() {
				return nil, err
			}
			m.logger.Warn("remote store unreachable while offline, returning pending-local view",
				"patient_id", patientID, "error", err)
			remote = nil
		}
	} else {
		m.logger.Debug("offline, returning pending-local view", "patient_id", patientID)
	}

	out := make([]MergedRecord, 0, len(remote))
	for _, rec := range remote {
		out = append(out, MergedRecord{
			ID:        rec.ID,
			PatientID: rec.PatientID,
			Type:      rec.Type,
			Payload:   rec.Payload,
			CreatedAt: rec.CreatedAt,
			Offline:   false,
		})
	}

	pending, err := m.queue.ListPending(ctx, patientID)
	if err != nil {
		m.logger.Warn("offline queue unavailable during read, returning remote view only",
			"patient_id", patientID, "error", err)
		return out, nil
	}

	for _, qw := range pending {
		if qw.Type != t {
			continue
		}
		out = append(out, MergedRecord{
			ID:        qw.ID,
			PatientID: qw.PatientID,
			Type:      qw.Type,
			Payload:   qw.Payload,
			CreatedAt: qw.CreatedAt,
			Offline:   true,
		})
	}

	return out, nil
}
