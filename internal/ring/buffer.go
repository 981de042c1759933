// Package ring provides Scout's bounded in-memory sample window: a
// single-producer, multi-consumer circular buffer of mono float32 samples
// at the device's native rate, paired with a durable WAV sink (sink.go) so
// the on-disk file and the in-memory window always describe the same
// sample sequence (spec.md §4.2).
package ring

import "sync/atomic"

// Buffer is a bounded FIFO of mono float32 samples. The writer owns the
// write cursor exclusively; readers never advance it. Overflow overwrites
// the oldest samples in memory — the paired WAV sink (§4.2) is the
// authoritative durable record and keeps growing regardless.
type Buffer struct {
	data []float32
	cap  uint64

	// written is the monotonic count of samples ever pushed. Readers
	// acquire-load it before computing their slice; the writer release-
	// stores it after the data is visible, giving readers a consistent
	// view without a lock on the hot path.
	written atomic.Uint64
}

// New creates a ring buffer with room for capacitySamples samples.
func New(capacitySamples int) *Buffer {
	if capacitySamples < 1 {
		capacitySamples = 1
	}
	return &Buffer{
		data: make([]float32, capacitySamples),
		cap:  uint64(capacitySamples),
	}
}

// Capacity returns the ring's fixed sample capacity.
func (b *Buffer) Capacity() int {
	return int(b.cap)
}

// Written returns the monotonic total number of samples ever written.
func (b *Buffer) Written() uint64 {
	return b.written.Load()
}

// Push appends samples to the ring. Writer-only; never blocks. If the ring
// is full, the oldest samples are silently overwritten — callers that need
// a durable record must also feed the same samples to a WAV sink.
func (b *Buffer) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}

	written := b.written.Load()
	n := uint64(len(samples))

	// A single push larger than capacity only leaves its tail in the ring.
	if n > b.cap {
		samples = samples[n-b.cap:]
		written += n - b.cap
		n = b.cap
	}

	pos := written % b.cap
	first := min(n, b.cap-pos)
	copy(b.data[pos:pos+first], samples[:first])
	if first < n {
		copy(b.data[0:n-first], samples[first:])
	}

	b.written.Store(written + n)
}

// View is an immutable window over a sample range. Samples may reference
// the ring's backing array directly (no copy) when the range doesn't cross
// the physical wrap point, or a private copy when it does.
type View struct {
	Samples []float32
}

// ReadRange returns the samples in [lo, hi). Returns ErrOutOfWindow if any
// part of the range has already been overwritten or hasn't been written
// yet.
func (b *Buffer) ReadRange(lo, hi uint64) (View, error) {
	if hi < lo {
		return View{}, ErrOutOfWindow
	}
	written := b.written.Load()
	if hi > written {
		return View{}, ErrOutOfWindow
	}
	if written > b.cap && lo < written-b.cap {
		return View{}, ErrOutOfWindow
	}
	if lo == hi {
		return View{Samples: nil}, nil
	}

	n := hi - lo
	startPos := lo % b.cap

	if startPos+n <= b.cap {
		// Contiguous: no copy needed.
		return View{Samples: b.data[startPos : startPos+n]}, nil
	}

	// Wraps the physical buffer: one copy to present a contiguous slice.
	out := make([]float32, n)
	first := b.cap - startPos
	copy(out[:first], b.data[startPos:])
	copy(out[first:], b.data[:n-first])
	return View{Samples: out}, nil
}
