package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBuffer_ReadRange_WithinWindow(t *testing.T) {
	b := New(8)
	b.Push([]float32{1, 2, 3, 4})

	view, err := b.ReadRange(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, view.Samples)
}

func TestBuffer_ReadRange_EmptyRange(t *testing.T) {
	b := New(8)
	b.Push([]float32{1, 2, 3, 4})

	view, err := b.ReadRange(2, 2)
	require.NoError(t, err)
	assert.Empty(t, view.Samples)
}

func TestBuffer_ReadRange_FutureHiRejected(t *testing.T) {
	b := New(8)
	b.Push([]float32{1, 2, 3, 4})

	_, err := b.ReadRange(0, 5)
	assert.ErrorIs(t, err, ErrOutOfWindow)
}

func TestBuffer_ReadRange_EvictedLoRejected(t *testing.T) {
	b := New(4)
	b.Push([]float32{1, 2, 3, 4, 5, 6}) // overwrites [0,2)

	_, err := b.ReadRange(0, 2)
	assert.ErrorIs(t, err, ErrOutOfWindow)

	view, err := b.ReadRange(2, 6)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4, 5, 6}, view.Samples)
}

func TestBuffer_Push_WraparoundAcrossBoundary(t *testing.T) {
	b := New(4)
	b.Push([]float32{1, 2, 3})
	b.Push([]float32{4, 5, 6})

	view, err := b.ReadRange(2, 6)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4, 5, 6}, view.Samples)
}

func TestBuffer_Push_LargerThanCapacityKeepsTail(t *testing.T) {
	b := New(4)
	b.Push([]float32{1, 2, 3, 4, 5, 6, 7, 8})

	assert.Equal(t, uint64(8), b.Written())
	view, err := b.ReadRange(4, 8)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 7, 8}, view.Samples)
}

// TestBuffer_ReadRange_Property checks spec.md §8's in-window invariant: any
// range fully within [written-cap, written) never returns ErrOutOfWindow and
// always reports exactly hi-lo samples.
func TestBuffer_ReadRange_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(4, 64).Draw(t, "capacity")
		b := New(capacity)

		pushes := rapid.SliceOfN(rapid.IntRange(1, 32), 1, 8).Draw(t, "pushes")
		for _, n := range pushes {
			samples := make([]float32, n)
			for i := range samples {
				samples[i] = float32(i)
			}
			b.Push(samples)
		}

		written := b.Written()
		lo := uint64(0)
		if written > uint64(capacity) {
			lo = written - uint64(capacity)
		}
		if lo >= written {
			return
		}

		hi := rapid.Uint64Range(lo, written).Draw(t, "hi")
		loPick := rapid.Uint64Range(lo, hi).Draw(t, "lo")

		view, err := b.ReadRange(loPick, hi)
		require.NoError(t, err)
		assert.Len(t, view.Samples, int(hi-loPick))
	})
}
