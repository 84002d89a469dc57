package ehrstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newStoreHarness starts a throwaway Postgres container and returns a Service
// with its schema initialized against it.
func newStoreHarness(t *testing.T) (*Service, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("ehr_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	service, err := NewService(ctx, pool, nil)
	require.NoError(t, err)
	return service, pool
}

func TestCreateRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	service, _ := newStoreHarness(t)

	payload := json.RawMessage(`{"date":"2024-01-15","notes":"routine checkup"}`)
	id, err := service.CreateRecord(ctx, "p1", "visit", payload)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	records, err := service.ListByPatient(ctx, "p1", "visit")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, id, records[0].ID)
	require.Equal(t, "p1", records[0].PatientID)
	require.Equal(t, "visit", records[0].RecordType)
	require.JSONEq(t, string(payload), string(records[0].Payload))
	require.False(t, records[0].CreatedAt.IsZero())
}

func TestCreateRecordEnsuresPatientRow(t *testing.T) {
	ctx := context.Background()
	service, pool := newStoreHarness(t)

	_, err := service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-15"}`))
	require.NoError(t, err)

	var count int
	err = pool.QueryRow(ctx, `SELECT count(*) FROM patients WHERE id = $1`, "p1").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// A second record for the same patient reuses the row.
	_, err = service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-16"}`))
	require.NoError(t, err)
	err = pool.QueryRow(ctx, `SELECT count(*) FROM patients WHERE id = $1`, "p1").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCreateRecordRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	service, _ := newStoreHarness(t)

	_, err := service.CreateRecord(ctx, "p1", "prescription", json.RawMessage(`{}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid record type")

	_, err = service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{not json`))
	require.Error(t, err)

	_, err = service.CreateRecord(ctx, "p1", "visit", nil)
	require.Error(t, err)
}

func TestListByPatientFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	service, _ := newStoreHarness(t)

	first, err := service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-01"}`))
	require.NoError(t, err)
	second, err := service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-02"}`))
	require.NoError(t, err)
	_, err = service.CreateRecord(ctx, "p1", "referral", json.RawMessage(`{"facility":"Clinic"}`))
	require.NoError(t, err)
	_, err = service.CreateRecord(ctx, "p2", "visit", json.RawMessage(`{"date":"2024-01-03"}`))
	require.NoError(t, err)

	records, err := service.ListByPatient(ctx, "p1", "visit")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, first, records[0].ID)
	require.Equal(t, second, records[1].ID)
}

func TestListByPatientRejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	service, _ := newStoreHarness(t)

	_, err := service.ListByPatient(ctx, "p1", "prescription")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid record type")
}

func TestUpdatePatientField(t *testing.T) {
	ctx := context.Background()
	service, pool := newStoreHarness(t)

	_, err := service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-15"}`))
	require.NoError(t, err)

	stamp := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, service.UpdatePatientField(ctx, "p1", "lastVisit", stamp))

	var lastVisit time.Time
	err = pool.QueryRow(ctx, `SELECT last_visit FROM patients WHERE id = $1`, "p1").Scan(&lastVisit)
	require.NoError(t, err)
	require.True(t, lastVisit.Equal(stamp))

	require.NoError(t, service.UpdatePatientField(ctx, "p1", "fullName", "Jane Doe"))
	var fullName string
	err = pool.QueryRow(ctx, `SELECT full_name FROM patients WHERE id = $1`, "p1").Scan(&fullName)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", fullName)
}

func TestUpdatePatientFieldRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	service, _ := newStoreHarness(t)

	_, err := service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-15"}`))
	require.NoError(t, err)

	err = service.UpdatePatientField(ctx, "p1", "ssn", "000-00-0000")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not updatable")
}

func TestUpdatePatientFieldMissingPatient(t *testing.T) {
	ctx := context.Background()
	service, _ := newStoreHarness(t)

	err := service.UpdatePatientField(ctx, "ghost", "lastVisit", time.Now().UTC())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestSchemaInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, pool := newStoreHarness(t)

	_, err := service.CreateRecord(ctx, "p1", "visit", json.RawMessage(`{"date":"2024-01-15"}`))
	require.NoError(t, err)

	// A second service over the same database re-runs schema init without
	// touching existing rows.
	again, err := NewService(ctx, pool, nil)
	require.NoError(t, err)
	records, err := again.ListByPatient(ctx, "p1", "visit")
	require.NoError(t, err)
	require.Len(t, records, 1)
}
