package ring

// SessionSink pairs the in-memory Buffer with the durable WAV Sink so the
// capture package can feed both through a single narrow interface
// (capture.Sink) without importing ring's concrete types — the two must
// always advance together to preserve spec.md §4.2 invariant (v).
type SessionSink struct {
	Buf *Buffer
	WAV *Sink
}

// Push forwards mono samples to the in-memory ring.
func (s *SessionSink) Push(samples []float32) {
	s.Buf.Push(samples)
}

// EnqueueNative forwards the native-format frame to the durable WAV sink.
func (s *SessionSink) EnqueueNative(frame []byte) bool {
	return s.WAV.Enqueue(frame)
}
