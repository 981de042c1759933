package engine

import "errors"

var (
	// ErrInitFailed wraps a failure constructing the underlying sherpa
	// recognizer (bad model paths, corrupt ONNX graph, provider unavailable).
	ErrInitFailed = errors.New("engine: recognizer init failed")

	// ErrClosed is returned by Transcribe after the engine handle has been
	// evicted or the pool has been shut down.
	ErrClosed = errors.New("engine: handle closed")

	// ErrNoSamples is returned when Transcribe is called with zero samples.
	ErrNoSamples = errors.New("engine: no samples to transcribe")
)
