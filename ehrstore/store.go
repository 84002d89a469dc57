// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// Package ehrstore implements the authoritative remote record store: a
// Postgres-backed service with an HTTP API the offline engine syncs against.
package ehrstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blaqmann/ehr-system/offline"
)

// Record is the wire representation of a server-confirmed clinical record.
type Record struct {
	ID         string          `json:"id"`
	PatientID  string          `json:"patientId"`
	RecordType string          `json:"recordType"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// patientFieldColumns whitelists the patient aggregate fields writable
// through UpdatePatientField.
var patientFieldColumns = map[string]string{
	"lastVisit": "last_visit",
	"fullName":  "full_name",
}

// Service provides record storage over a pgx connection pool. The schema is
// initialized in code at construction, so a fresh database is usable
// immediately.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the store service and initializes its schema.
func NewService(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{pool: pool, logger: logger}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return s.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return s, nil
}

func (s *Service) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id         TEXT PRIMARY KEY,
			full_name  TEXT NOT NULL DEFAULT '',
			last_visit TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS clinical_records (
			id          UUID PRIMARY KEY,
			patient_id  TEXT NOT NULL REFERENCES patients(id),
			record_type TEXT NOT NULL,
			payload     JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clinical_records_patient
			ON clinical_records (patient_id, record_type)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// CreateRecord stores a new clinical record and returns its server-assigned
// id. The owning patient row is created on first contact. The write is
// retried on transient Postgres transaction errors.
func (s *Service) CreateRecord(ctx context.Context, patientID, recordType string, payload json.RawMessage) (string, error) {
	if _, err := offline.ParseRecordType(recordType); err != nil {
		return "", fmt.Errorf("invalid record type: %w", err)
	}
	if !json.Valid(payload) || len(payload) == 0 {
		return "", fmt.Errorf("payload must be a valid JSON document")
	}

	id := uuid.New().String()
	err := s.withTxRetry(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO patients (id) VALUES ($1)
			ON CONFLICT (id) DO NOTHING
		`, patientID); err != nil {
			return fmt.Errorf("failed to ensure patient row: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO clinical_records (id, patient_id, record_type, payload, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, id, patientID, recordType, payload); err != nil {
			return fmt.Errorf("failed to insert clinical record: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("record created", "id", id, "patient_id", patientID, "type", recordType)
	return id, nil
}

// ListByPatient returns all records of one type for a patient, oldest first.
func (s *Service) ListByPatient(ctx context.Context, patientID, recordType string) ([]Record, error) {
	if _, err := offline.ParseRecordType(recordType); err != nil {
		return nil, fmt.Errorf("invalid record type: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, record_type, payload, created_at
		FROM clinical_records
		WHERE patient_id = $1 AND record_type = $2
		ORDER BY created_at
	`, patientID, recordType)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.RecordType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// UpdatePatientField updates one whitelisted field of the patient aggregate
// (the lastVisit denormalization and profile fields).
func (s *Service) UpdatePatientField(ctx context.Context, patientID, field string, value any) error {
	column, ok := patientFieldColumns[field]
	if !ok {
		return fmt.Errorf("field %q is not updatable", field)
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE patients SET %s = $1 WHERE id = $2`, column),
		value, patientID)
	if err != nil {
		return fmt.Errorf("failed to update patient field %s: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s not found", patientID)
	}
	return nil
}

// withTxRetry runs fn in a transaction, retrying a few times on transient
// Postgres errors (serialization failures, deadlocks, lock timeouts).
func (s *Service) withTxRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = pgx.BeginFunc(ctx, s.pool, fn)
		if err == nil || !isRetryablePGTxError(err) {
			return err
		}
		s.logger.Warn("retrying transaction after transient error",
			"attempt", attempt, "error", err)
		if sleepErr := sleepWithContext(ctx, time.Duration(attempt)*50*time.Millisecond); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func isRetryablePGTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available (incl. lock_timeout)
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
