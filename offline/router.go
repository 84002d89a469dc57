// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import (
	"context"
	"log/slog"
	"time"
)

// RemoteStore is the authoritative record store the engine syncs against.
// All calls may fail with a connectivity or validation fault; the engine
// treats such faults as opaque and non-retryable within the same call.
type RemoteStore interface {
	CreateRecord(ctx context.Context, patientID string, t RecordType, payload Payload) (string, error)
	ListByPatient(ctx context.Context, patientID string, t RecordType) ([]RemoteRecord, error)
	UpdatePatientField(ctx context.Context, patientID, field string, value any) error
}

// SubmitResult tells the caller whether a write achieved immediate remote
// durability or deferred (queued offline) durability. Exactly one of the two
// outcomes is reported, never silently either.
type SubmitResult struct {
	// RemoteID is the server-assigned identifier for a direct write.
	RemoteID string
	// Queued is true when the write was accepted into the offline queue.
	Queued bool
	// QueueID is the local queue entry id when Queued is true.
	QueueID string
}

// Router decides per write whether to go straight to the remote store or to
// the offline queue, consulting the conflict resolver when a queued duplicate
// of the same event already exists.
type Router struct {
	queue   *Queue
	monitor *Monitor
	store   RemoteStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter wires a write router over an explicitly owned queue, monitor and
// remote store.
func NewRouter(queue *Queue, monitor *Monitor, store RemoteStore, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		queue:   queue,
		monitor: monitor,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit routes one record write. Malformed payloads are rejected before any
// storage is touched. Offline, the write lands in the durable queue and the
// result carries its queue id. Online, any pending queued write for the same
// event is merged into the candidate first, so an online write never silently
// clobbers a divergent offline one, then the record is created remotely.
func (r *Router) Submit(ctx context.Context, t RecordType, patientID string, payload Payload) (SubmitResult, error) {
	if err := validatePayload(t, payload); err != nil {
		return SubmitResult{}, err
	}

	if !r.monitor.Online() {
		qw, err := r.queue.Enqueue(ctx, t, patientID, payload)
		if err != nil {
			return SubmitResult{}, err
		}
		r.logger.Info("write queued offline",
			"type", t.String(), "patient_id", patientID, "queue_id", qw.ID)
		return SubmitResult{Queued: true, QueueID: qw.ID}, nil
	}

	id, err := r.deliver(ctx, t, patientID, payload, candidateTime(payload, r.now), "")
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{RemoteID: id}, nil
}

// deliver is the direct-write path shared by online Submit and the drain.
// excludeQueueID skips the queue entry being drained so it never conflicts
// with itself.
func (r *Router) deliver(ctx context.Context, t RecordType, patientID string, payload Payload, createdAt time.Time, excludeQueueID string) (string, error) {
	pending, err := r.queue.ListPending(ctx, patientID)
	if err != nil {
		return "", err
	}

	key := matchKey(t, payload)
	for _, qw := range pending {
		if qw.ID == excludeQueueID || qw.Type != t {
			continue
		}
		if matchKey(t, qw.Payload) != key {
			continue
		}
		resolved := Resolve(t, qw, RemoteRecord{
			PatientID: patientID,
			Type:      t,
			Payload:   payload,
			CreatedAt: createdAt,
		})
		r.logger.Info("merged candidate write with pending offline duplicate",
			"type", t.String(), "patient_id", patientID, "queue_id", qw.ID)
		payload = resolved
		break
	}

	id, err := r.store.CreateRecord(ctx, patientID, t, payload)
	if err != nil {
		return "", err
	}

	if t == RecordVisit {
		stamp := r.now().UTC().Format(time.RFC3339)
		if err := r.store.UpdatePatientField(ctx, patientID, "lastVisit", stamp); err != nil {
			// The visit itself is already durable; the denormalized stamp
			// will be corrected by the next visit write.
			r.logger.Warn("failed to update lastVisit stamp",
				"patient_id", patientID, "error", err)
		}
	}

	return id, nil
}

// candidateTime extracts the candidate's own creation timestamp when the
// payload carries one, so conflict resolution compares event times rather
// than arrival times. Falls back to the current clock.
func candidateTime(p Payload, now func() time.Time) time.Time {
	if s := stringField(p, "createdAt"); s != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
	}
	return now().UTC()
}
