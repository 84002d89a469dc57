// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Queue is the local durable store of pending writes. It survives process
// restarts and opens lazily on first use, so every method is safe to call
// without an explicit open. The underlying SQLite database is the
// serialization point for concurrent submit/drain activity.
type Queue struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// NewQueue creates a queue backed by the SQLite database at path. The
// database file is not touched until the first operation.
func NewQueue(path string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// ensureOpen opens the database and creates the schema on first use.
func (q *Queue) ensureOpen() (*sql.DB, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.db != nil {
		return q.db, nil
	}

	db, err := sql.Open("sqlite3", q.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &StorageError{Op: "open queue database", Err: err}
	}
	// A single connection keeps SQLite writes serialized and makes the
	// in-memory DSN usable in tests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_writes (
			id          TEXT PRIMARY KEY,
			record_type TEXT NOT NULL,
			patient_id  TEXT NOT NULL,
			payload     TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			synced      INTEGER NOT NULL DEFAULT 0,
			UNIQUE (patient_id, record_type, created_at)
		);
		CREATE INDEX IF NOT EXISTS idx_queued_writes_patient ON queued_writes(patient_id);
		CREATE INDEX IF NOT EXISTS idx_queued_writes_synced ON queued_writes(synced);
	`); err != nil {
		db.Close()
		return nil, &StorageError{Op: "initialize queue schema", Err: err}
	}

	q.db = db
	return db, nil
}

// Enqueue persists a new pending write with a generated id and creation
// timestamp and synced=false. A second entry for the same
// (patient, type, createdAt) triple is rejected, never silently overwritten;
// the nanosecond timestamp makes collisions practically impossible outside
// of tests with a frozen clock.
func (q *Queue) Enqueue(ctx context.Context, t RecordType, patientID string, payload Payload) (*QueuedWrite, error) {
	if err := validatePayload(t, payload); err != nil {
		return nil, err
	}

	db, err := q.ensureOpen()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &StorageError{Op: "encode payload", Err: err}
	}

	qw := &QueuedWrite{
		ID:        uuid.New().String(),
		Type:      t,
		PatientID: patientID,
		Payload:   payload,
		CreatedAt: q.now().UTC(),
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO queued_writes (id, record_type, patient_id, payload, created_at, synced)
		VALUES (?, ?, ?, ?, ?, 0)
	`, qw.ID, qw.Type.String(), qw.PatientID, string(body), qw.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, &StorageError{
				Op:  fmt.Sprintf("enqueue %s for patient %s", t, patientID),
				Err: fmt.Errorf("duplicate pending entry for the same creation timestamp: %w", err),
			}
		}
		return nil, &StorageError{Op: "enqueue pending write", Err: err}
	}

	q.logger.Debug("queued write persisted",
		"id", qw.ID, "type", qw.Type.String(), "patient_id", patientID)
	return qw, nil
}

// ListPending returns all unsynced entries for a patient in insertion order.
func (q *Queue) ListPending(ctx context.Context, patientID string) ([]QueuedWrite, error) {
	db, err := q.ensureOpen()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, record_type, patient_id, payload, created_at
		FROM queued_writes
		WHERE patient_id = ? AND synced = 0
		ORDER BY rowid
	`, patientID)
	if err != nil {
		return nil, &StorageError{Op: "list pending writes", Err: err}
	}
	defer rows.Close()

	return scanQueuedWrites(rows)
}

// ListAllPending returns every unsynced entry across all patients, in
// insertion order. This is the drain's work list.
func (q *Queue) ListAllPending(ctx context.Context) ([]QueuedWrite, error) {
	db, err := q.ensureOpen()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, record_type, patient_id, payload, created_at
		FROM queued_writes
		WHERE synced = 0
		ORDER BY rowid
	`)
	if err != nil {
		return nil, &StorageError{Op: "list all pending writes", Err: err}
	}
	defer rows.Close()

	return scanQueuedWrites(rows)
}

// Pending reports whether the entry with the given id is still awaiting
// delivery. Unknown ids report false.
func (q *Queue) Pending(ctx context.Context, id string) (bool, error) {
	db, err := q.ensureOpen()
	if err != nil {
		return false, err
	}

	var synced int
	err = db.QueryRowContext(ctx, `SELECT synced FROM queued_writes WHERE id = ?`, id).Scan(&synced)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "check pending state", Err: err}
	}
	return synced == 0, nil
}

// MarkSynced flips an entry to synced=true. It is idempotent: marking an
// already-synced or nonexistent id is a no-op, never an error. Synced
// entries are retained for audit, not deleted.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	db, err := q.ensureOpen()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `UPDATE queued_writes SET synced = 1 WHERE id = ?`, id); err != nil {
		return &StorageError{Op: "mark synced", Err: err}
	}
	return nil
}

// PurgeSynced removes retired (synced=true) entries and returns how many were
// deleted. Nothing calls this automatically; it exists as a maintenance hook
// because retained entries otherwise grow without bound.
func (q *Queue) PurgeSynced(ctx context.Context) (int64, error) {
	db, err := q.ensureOpen()
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM queued_writes WHERE synced = 1`)
	if err != nil {
		return 0, &StorageError{Op: "purge synced entries", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database. Subsequent operations reopen it.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.db == nil {
		return nil
	}
	err := q.db.Close()
	q.db = nil
	return err
}

func scanQueuedWrites(rows *sql.Rows) ([]QueuedWrite, error) {
	var out []QueuedWrite
	for rows.Next() {
		var (
			qw        QueuedWrite
			typeName  string
			body      string
			createdAt string
		)
		if err := rows.Scan(&qw.ID, &typeName, &qw.PatientID, &body, &createdAt); err != nil {
			return nil, &StorageError{Op: "scan pending write", Err: err}
		}

		t, err := ParseRecordType(typeName)
		if err != nil {
			return nil, &StorageError{Op: "decode pending write", Err: err}
		}
		qw.Type = t

		if err := json.Unmarshal([]byte(body), &qw.Payload); err != nil {
			return nil, &StorageError{Op: "decode payload", Err: err}
		}

		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, &StorageError{Op: "decode creation timestamp", Err: err}
		}
		qw.CreatedAt = ts

		out = append(out, qw)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate pending writes", Err: err}
	}
	return out, nil
}
