package offline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrainReturnsZeroWhenOffline(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)

	_, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": "2024-01-01"})
	require.NoError(t, err)

	count, err := e.coordinator.Drain(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, e.store.createCalls)
}

func TestDrainDeliversAllPendingOnce(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)

	for i := range 3 {
		_, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": fmt.Sprintf("2024-01-%02d", i+1)})
		require.NoError(t, err)
	}
	_, err := e.router.Submit(ctx, RecordReferral, "P2", Payload{"facility": "Clinic", "referralDate": "2024-01-05"})
	require.NoError(t, err)

	e.prim.set(true)
	count, err := e.coordinator.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, count)

	pending, err := e.queue.ListAllPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Len(t, e.store.recordsFor("P1", RecordVisit), 3)
	require.Len(t, e.store.recordsFor("P2", RecordReferral), 1)

	// Idempotent: a second drain with no new writes delivers nothing.
	count, err = e.coordinator.Drain(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Len(t, e.store.recordsFor("P1", RecordVisit), 3)
}

func TestDrainSkipsFailedEntryAndContinues(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)

	_, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": "2024-01-01"})
	require.NoError(t, err)
	_, err = e.router.Submit(ctx, RecordVisit, "P2", Payload{"date": "2024-01-02"})
	require.NoError(t, err)
	_, err = e.router.Submit(ctx, RecordVisit, "P3", Payload{"date": "2024-01-03"})
	require.NoError(t, err)

	// P2's delivery fails; the batch must not abort.
	e.store.failCreate = func(patientID string, _ RecordType) bool { return patientID == "P2" }

	e.prim.set(true)
	count, err := e.coordinator.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	pending, err := e.queue.ListAllPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "P2", pending[0].PatientID)

	// Once the remote recovers, only the failed entry is retried.
	e.store.failCreate = nil
	count, err = e.coordinator.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, e.store.recordsFor("P2", RecordVisit), 1)
}

func TestDrainStampsLastVisitForVisits(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)

	_, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": "2024-01-01"})
	require.NoError(t, err)

	e.prim.set(true)
	_, err = e.coordinator.Drain(ctx)
	require.NoError(t, err)
	require.NotNil(t, e.store.patientFields["P1"]["lastVisit"])
}

func TestDrainIsSafeToRunConcurrently(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)

	for i := range 5 {
		_, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": fmt.Sprintf("2024-02-%02d", i+1)})
		require.NoError(t, err)
	}
	e.prim.set(true)

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := e.coordinator.Drain(ctx)
			require.NoError(t, err)
			counts[i] = n
		}()
	}
	wg.Wait()

	// The racing drains deliver each record exactly once between them.
	require.Equal(t, 5, counts[0]+counts[1])
	require.Len(t, e.store.recordsFor("P1", RecordVisit), 5)
}

func TestDrainRecorderObservesStats(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)

	var observed []DrainStats
	e.coordinator.recorder = DrainRecorderFunc(func(_ context.Context, stats DrainStats) {
		observed = append(observed, stats)
	})

	_, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": "2024-01-01"})
	require.NoError(t, err)

	e.prim.set(true)
	_, err = e.coordinator.Drain(ctx)
	require.NoError(t, err)

	require.Len(t, observed, 1)
	require.Equal(t, 1, observed[0].Attempted)
	require.Equal(t, 1, observed[0].Delivered)
	require.Zero(t, observed[0].Failed)
}

func TestOfflineToOnlineScenario(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, false)
	e.coordinator.Start(ctx)

	// Offline: the visit is queued and visible in the merged view.
	result, err := e.router.Submit(ctx, RecordVisit, "P1", Payload{"date": "2024-01-01", "symptoms": "fever"})
	require.NoError(t, err)
	require.True(t, result.Queued)

	records, err := e.merger.ReadAll(ctx, RecordVisit, "P1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].Offline)

	// Connectivity returns: a manual drain delivers the record.
	e.prim.set(true)
	count, err := e.coordinator.Drain(ctx)
	require.LessOrEqual(t, count, 1) // the becameOnline goroutine may have won
	require.NoError(t, err)

	pending, err := e.queue.ListPending(ctx, "P1")
	require.NoError(t, err)
	require.Empty(t, pending)

	remote := e.store.recordsFor("P1", RecordVisit)
	require.Len(t, remote, 1)
	require.Equal(t, "fever", remote[0].Payload["symptoms"])

	records, err = e.merger.ReadAll(ctx, RecordVisit, "P1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.False(t, records[0].Offline)
}
