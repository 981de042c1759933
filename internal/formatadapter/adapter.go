package formatadapter

import "sync"

// TargetSampleRate is the sample rate every transcription engine requires.
const TargetSampleRate = 16000

// shortInputSeconds / padTargetSeconds implement the §4.3/§4.8 padding rule:
// inputs shorter than 0.3s after resample are padded to 0.5s so the engine
// always receives a usable minimum window.
const (
	shortInputSeconds = 0.3
	padTargetSeconds  = 0.5
)

// Result is the adapter's output: 16 kHz mono float32 samples plus whether
// silence padding was applied, so downstream callers (the merger) can
// discount the padded tail when computing timeline coverage.
type Result struct {
	Samples []float32
	Padded  bool
}

// Adapter resamples already-mono samples (as delivered by the ring buffer,
// which stores mono-downmixed audio per spec.md §3) into 16 kHz. It is safe
// for concurrent use: each Adapt call is self-contained and carries no
// state from the previous call (spec.md §4.8) — only the filter
// coefficients, which depend solely on the source rate, are cached.
type Adapter struct {
	mu      sync.Mutex
	filters map[int]*polyphaseFilter
	pool    sync.Pool
}

// New creates a format adapter targeting TargetSampleRate.
func New() *Adapter {
	return &Adapter{
		filters: make(map[int]*polyphaseFilter),
		pool: sync.Pool{
			New: func() any {
				buf := make([]float32, 0, TargetSampleRate) // 1s headroom
				return &buf
			},
		},
	}
}

// Adapt resamples mono samples captured at sourceRate into 16 kHz mono,
// padding short results with trailing silence.
func (a *Adapter) Adapt(mono []float32, sourceRate int) Result {
	resampled := a.resample(mono, sourceRate)
	return a.pad(resampled)
}

// resample converts mono float32 samples at fromRate to TargetSampleRate.
func (a *Adapter) resample(mono []float32, fromRate int) []float32 {
	if fromRate == TargetSampleRate || len(mono) == 0 {
		return mono
	}
	if fromRate < TargetSampleRate {
		ratio := float64(TargetSampleRate) / float64(fromRate)
		return upsample(mono, ratio)
	}

	a.mu.Lock()
	filter, ok := a.filters[fromRate]
	if !ok {
		filter = newPolyphaseFilter(fromRate, TargetSampleRate)
		a.filters[fromRate] = filter
	}
	a.mu.Unlock()

	return filter.downsample(mono)
}

// pad applies trailing-silence padding for short inputs, drawing the output
// buffer from a pool to avoid per-chunk allocation pressure.
func (a *Adapter) pad(samples []float32) Result {
	shortThreshold := int(shortInputSeconds * TargetSampleRate)
	if len(samples) >= shortThreshold {
		return Result{Samples: samples}
	}

	padTarget := int(padTargetSeconds * TargetSampleRate)
	pooled := a.pool.Get().(*[]float32)
	out := (*pooled)[:0]
	if cap(out) < padTarget {
		out = make([]float32, 0, padTarget)
	}
	out = append(out, samples...)
	for len(out) < padTarget {
		out = append(out, 0)
	}
	*pooled = out
	return Result{Samples: out, Padded: true}
}

// Release returns a padded result's backing buffer to the pool. Callers
// that received Result.Padded == true should call this once the samples
// have been consumed (e.g. handed to the engine).
func (a *Adapter) Release(r Result) {
	if !r.Padded {
		return
	}
	buf := r.Samples
	a.pool.Put(&buf)
}
