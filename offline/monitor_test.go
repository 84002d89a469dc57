package offline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitorSeedsFromPrimitive(t *testing.T) {
	prim := &fakePrimitive{online: true}
	m := NewMonitor(prim, nil)
	defer m.Close()

	require.True(t, m.Online())
}

func TestMonitorEdgeCallbacks(t *testing.T) {
	prim := &fakePrimitive{}
	m := NewMonitor(prim, nil)
	defer m.Close()

	var ups, downs int
	m.OnBecameOnline(func() { ups++ })
	m.OnBecameOffline(func() { downs++ })

	prim.set(true)
	require.True(t, m.Online())
	require.Equal(t, 1, ups)
	require.Equal(t, 0, downs)

	prim.set(false)
	require.False(t, m.Online())
	require.Equal(t, 1, ups)
	require.Equal(t, 1, downs)
}

func TestMonitorDebouncesDuplicateTransitions(t *testing.T) {
	prim := &fakePrimitive{}
	m := NewMonitor(prim, nil)
	defer m.Close()

	var ups int
	m.OnBecameOnline(func() { ups++ })

	prim.set(true)
	prim.set(true)
	prim.set(true)
	require.Equal(t, 1, ups)

	prim.set(false)
	prim.set(true)
	require.Equal(t, 2, ups)
}
