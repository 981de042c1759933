package formatadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdapt_NoResampleWhenAlreadyTargetRate(t *testing.T) {
	a := New()
	mono := make([]float32, TargetSampleRate) // 1s, above the padding threshold
	for i := range mono {
		mono[i] = float32(i)
	}

	result := a.Adapt(mono, TargetSampleRate)
	assert.False(t, result.Padded)
	assert.Equal(t, mono, result.Samples)
}

func TestAdapt_DownsampleProducesExpectedLength(t *testing.T) {
	a := New()
	mono := make([]float32, 48000) // 1s at 48kHz, above the padding threshold
	result := a.Adapt(mono, 48000)

	assert.InDelta(t, TargetSampleRate, len(result.Samples), float64(TargetSampleRate)/100)
}

func TestAdapt_UpsampleProducesExpectedLength(t *testing.T) {
	a := New()
	mono := make([]float32, 8000) // 1s at 8kHz
	result := a.Adapt(mono, 8000)

	assert.InDelta(t, TargetSampleRate, len(result.Samples), float64(TargetSampleRate)/100)
}

func TestAdapt_ShortInputIsPaddedToMinimumWindow(t *testing.T) {
	a := New()
	mono := make([]float32, TargetSampleRate/10) // 0.1s, below the 0.3s threshold

	result := a.Adapt(mono, TargetSampleRate)
	assert.True(t, result.Padded)
	assert.Equal(t, int(padTargetSeconds*TargetSampleRate), len(result.Samples))
	a.Release(result)
}

func TestAdapt_LongEnoughInputIsNotPadded(t *testing.T) {
	a := New()
	mono := make([]float32, int(shortInputSeconds*TargetSampleRate)+1)

	result := a.Adapt(mono, TargetSampleRate)
	assert.False(t, result.Padded)
}

func TestAdapt_FilterCachedAcrossCalls(t *testing.T) {
	a := New()
	mono := make([]float32, 48000)

	a.Adapt(mono, 48000)
	a.Adapt(mono, 48000)

	assert.Len(t, a.filters, 1, "the downsample filter for one source rate should be built once and reused")
}

func TestRelease_OnlyReturnsPaddedBuffers(t *testing.T) {
	a := New()
	unpadded := Result{Samples: []float32{1, 2, 3}, Padded: false}
	// Must not panic even though this buffer never came from the pool.
	a.Release(unpadded)
}
