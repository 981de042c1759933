package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arach/scout/internal/sherpa"
)

// Handle owns one live sherpa OfflineRecognizer. Decode is not safe for
// concurrent use on a single recognizer instance (grounded on the teacher's
// internal/stt.Recognizer, which likewise serializes all sherpa calls behind
// a mutex), so each Handle only lets one Transcribe run at a time — callers
// needing parallelism acquire distinct handles, which the Pool only builds
// for distinct model specs.
type Handle struct {
	spec ModelSpec
	rec  *sherpa.OfflineRecognizer

	mu     sync.Mutex
	closed atomic.Bool
}

func newHandle(spec ModelSpec) (*Handle, error) {
	cfg := &sherpa.OfflineRecognizerConfig{}
	cfg.ModelConfig.Whisper.Encoder = spec.Encoder
	cfg.ModelConfig.Whisper.Decoder = spec.Decoder
	cfg.ModelConfig.Whisper.Task = "transcribe"
	cfg.ModelConfig.Whisper.TailPaddings = -1
	language := spec.Language
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	cfg.ModelConfig.Whisper.Language = language
	cfg.ModelConfig.Tokens = spec.Tokens
	cfg.ModelConfig.NumThreads = spec.NumThreads
	cfg.ModelConfig.Provider = spec.Provider
	cfg.DecodingMethod = "greedy_search"

	rec := sherpa.NewOfflineRecognizer(cfg)
	if rec == nil {
		return nil, ErrInitFailed
	}

	return &Handle{spec: spec, rec: rec}, nil
}

// Transcribe decodes one chunk of 16kHz mono samples. ctx is checked once
// before the (uninterruptible, C++-backed) decode call starts — sherpa's
// Decode has no mid-call cancellation hook, so a chunk already in flight
// always runs to completion; only chunks that haven't started yet can be
// skipped (spec.md §4.5 cooperative cancellation).
func (h *Handle) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if h.closed.Load() {
		return "", ErrClosed
	}
	if len(samples) == 0 {
		return "", ErrNoSamples
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return "", ErrClosed
	}

	stream := sherpa.NewOfflineStream(h.rec)
	if stream == nil {
		return "", ErrInitFailed
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	h.rec.Decode(stream)

	result := stream.GetResult()
	return strings.TrimSpace(result.Text), nil
}

// Close releases the underlying recognizer. Idempotent.
func (h *Handle) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sherpa.DeleteOfflineRecognizer(h.rec)
}
