package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContinuityInOrder(t *testing.T) {
	ct := NewContinuityTracker()
	for i := 0; i < 100; i++ {
		require.True(t, ct.Observe(100, uint8(i%16)))
	}
	require.Equal(t, 100, ct.Packets(100))
	require.Equal(t, 0, ct.Errors(100))
	require.Empty(t, ct.Details(100))
}

func TestContinuitySkipOne(t *testing.T) {
	ct := NewContinuityTracker()
	for _, cc := range []uint8{3, 4, 5, 7, 8, 9} {
		ct.Observe(33, cc)
	}
	require.Equal(t, 1, ct.Errors(33))
	require.Equal(t, []string{"expected 6, got 7"}, ct.Details(33))
	require.Equal(t, 6, ct.Packets(33))
}

func TestContinuityWrap(t *testing.T) {
	ct := NewContinuityTracker()
	require.True(t, ct.Observe(1, 15))
	require.True(t, ct.Observe(1, 0))
	require.False(t, ct.Observe(1, 15))
	require.Equal(t, []string{"expected 1, got 15"}, ct.Details(1))
}

func TestContinuityPerPID(t *testing.T) {
	ct := NewContinuityTracker()
	// interleaved PIDs, each incrementing on its own
	for i := 0; i < 32; i++ {
		ct.Observe(100, uint8(i))
		ct.Observe(101, uint8(i+7))
	}
	require.Equal(t, 0, ct.Errors(100))
	require.Equal(t, 0, ct.Errors(101))
	require.Equal(t, 0, ct.TotalErrors())
	require.Equal(t, []int{100, 101}, ct.PIDs())
}

func TestContinuityDetailsCapped(t *testing.T) {
	ct := NewContinuityTracker()
	ct.Observe(7, 0)
	for i := 0; i < 20; i++ {
		// repeat counter 0: every packet after the first is an error
		ct.Observe(7, 0)
	}
	require.Equal(t, 20, ct.Errors(7))
	require.Len(t, ct.Details(7), MaxErrorDetails)
	require.Equal(t, 20, ct.TotalErrors())
}

func TestContinuityResync(t *testing.T) {
	ct := NewContinuityTracker()
	ct.Observe(5, 1)
	ct.Observe(5, 9)
	// the tracker follows the latest counter
	require.True(t, ct.Observe(5, 10))
	require.Equal(t, 1, ct.Errors(5))
}

func TestContinuityDetailsCopy(t *testing.T) {
	ct := NewContinuityTracker()
	ct.Observe(5, 1)
	ct.Observe(5, 3)
	d := ct.Details(5)
	d[0] = "changed"
	require.Equal(t, "expected 2, got 3", ct.Details(5)[0])
}
