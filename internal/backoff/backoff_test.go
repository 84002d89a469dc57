package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextGrowsAndStaysWithinJitterBounds(t *testing.T) {
	b := New(100*time.Millisecond, 2*time.Second, 2.0)

	expected := 100 * time.Millisecond
	for i := 0; i < 5; i++ {
		wait := b.Next()
		require.GreaterOrEqual(t, wait, 100*time.Millisecond)
		require.LessOrEqual(t, wait, time.Duration(1.2*float64(expected)))
		expected = min(expected*2, 2*time.Second)
	}
	require.Equal(t, 5, b.Attempts())
}

func TestNextIsCappedAtMaxEvenWithJitter(t *testing.T) {
	b := New(100*time.Millisecond, 300*time.Millisecond, 10.0)

	b.Next()
	// Once the schedule saturates, jitter never pushes the wait past the
	// ceiling.
	for i := 0; i < 50; i++ {
		require.LessOrEqual(t, b.Next(), 300*time.Millisecond)
	}
}

func TestResetRestartsSchedule(t *testing.T) {
	b := New(100*time.Millisecond, 2*time.Second, 2.0)

	for i := 0; i < 4; i++ {
		b.Next()
	}
	b.Reset()
	require.Zero(t, b.Attempts())
	require.LessOrEqual(t, b.Next(), time.Duration(1.2*float64(100*time.Millisecond)))
}
