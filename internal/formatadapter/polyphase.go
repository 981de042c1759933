// Package formatadapter converts native-device audio into the engines'
// required 16 kHz mono float32 input.
package formatadapter

import "math"

// polyphaseFilter holds the precomputed coefficients for downsampling from
// one rate to another. Coefficients depend only on the rate pair, so they
// are computed once per pair and reused; the resampling state built around
// them (history) is never shared between calls — each Chunk stands on its
// own half-open sample range, so carrying continuity across windows that
// may overlap or jump around the ring would corrupt the signal.
type polyphaseFilter struct {
	ratio float64
	taps  []float32
}

// newPolyphaseFilter designs a 64-tap sinc low-pass filter windowed with a
// Hamming window, cutoff at the output Nyquist frequency for downsampling.
func newPolyphaseFilter(fromRate, toRate int) *polyphaseFilter {
	ratio := float64(toRate) / float64(fromRate)
	const filterLen = 64

	cutoff := 0.5
	if ratio < 1.0 {
		cutoff = ratio * 0.5
	}

	taps := make([]float32, filterLen)
	for i := 0; i < filterLen; i++ {
		n := float64(i) - float64(filterLen-1)/2.0
		if n == 0 {
			taps[i] = float32(2.0 * cutoff)
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(filterLen-1))
			taps[i] = float32(sinc * window)
		}
	}

	sum := float32(0.0)
	for _, t := range taps {
		sum += t
	}
	for i := range taps {
		taps[i] /= sum
	}

	return &polyphaseFilter{ratio: ratio, taps: taps}
}

// downsample applies the filter to a complete, self-contained input range.
// Edges are implicitly zero-padded (no carried history), matching the
// adapter's call-for-call statelessness.
func (f *polyphaseFilter) downsample(input []float32) []float32 {
	inputLen := len(input)
	outputLen := int(float64(inputLen) * f.ratio)
	output := make([]float32, outputLen)
	filterLen := len(f.taps)

	for i := 0; i < outputLen; i++ {
		srcIdx := int(float64(i) / f.ratio)

		sample := float32(0.0)
		for j := 0; j < filterLen; j++ {
			idx := srcIdx - filterLen/2 + j
			if idx >= 0 && idx < inputLen {
				sample += input[idx] * f.taps[j]
			}
		}
		output[i] = sample
	}

	return output
}

// upsample uses linear interpolation, sufficient for engine-input upsampling
// (rare: most devices deliver >= 16 kHz).
func upsample(input []float32, ratio float64) []float32 {
	inputLen := len(input)
	if inputLen == 0 {
		return input
	}
	outputLen := int(float64(inputLen) * ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		sample1 := input[min(srcIdx, inputLen-1)]
		sample2 := input[min(srcIdx+1, inputLen-1)]
		output[i] = sample1 + (sample2-sample1)*frac
	}

	return output
}
