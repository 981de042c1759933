package ring

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/arach/scout/internal/pcm"
)

// wavFormatPCM is the standard "integer PCM" WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// Sink is the single-writer durable WAV record for a session. It owns the
// file handle exclusively: the capture callback and every other goroutine
// only ever reach the file through Enqueue, never by touching fd/enc
// directly (spec.md §5 "WAV file: owned by a single task").
type Sink struct {
	file   *os.File
	enc    *wav.Encoder
	format pcm.Format

	queue      chan []byte
	done       chan struct{}
	wg         sync.WaitGroup
	frames     atomic.Uint64
	closeOnce  sync.Once
	writeErr   atomic.Pointer[error]
	intScratch []int
}

// NewSink creates the WAV file at path and starts its dedicated writer
// goroutine. queueSize bounds the hand-off channel from the capture
// callback; a full queue is back-pressure, not data loss — the caller
// decides what to do when Enqueue returns false.
func NewSink(path string, format pcm.Format, queueSize int) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ring: create wav file: %w", err)
	}

	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	enc := wav.NewEncoder(f, format.SampleRate, bitDepth, format.Channels, wavFormatPCM)

	s := &Sink{
		file:   f,
		enc:    enc,
		format: format,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Enqueue hands a native-format frame (raw bytes, as delivered by the
// device) to the writer goroutine. Non-blocking: returns false if the
// queue is full, in which case the caller should treat it as a DiskFull-
// adjacent back-pressure condition, not silently drop and move on.
func (s *Sink) Enqueue(frame []byte) bool {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case s.queue <- cp:
		return true
	default:
		return false
	}
}

// FrameCount returns the number of native-format sample frames written so
// far (one per channel-set, matching the ring's monotonic sample index).
func (s *Sink) FrameCount() uint64 {
	return s.frames.Load()
}

// Err returns the first fatal write error encountered (e.g. disk full), if
// any.
func (s *Sink) Err() error {
	if p := s.writeErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Sink) run() {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.queue:
			if !ok {
				return
			}
			s.write(frame)
		case <-s.done:
			// Drain remaining queued frames before exiting so no captured
			// audio is lost on a clean stop.
			for {
				select {
				case frame := <-s.queue:
					s.write(frame)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(frame []byte) {
	if s.Err() != nil {
		return
	}

	bytesPerSample := 4
	if s.format.Encoding == pcm.EncodingInt16 {
		bytesPerSample = 2
	}
	sampleCount := len(frame) / bytesPerSample
	if cap(s.intScratch) < sampleCount {
		s.intScratch = make([]int, sampleCount)
	}
	data := s.intScratch[:sampleCount]

	switch s.format.Encoding {
	case pcm.EncodingInt16:
		for i := 0; i < sampleCount; i++ {
			data[i] = int(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		}
	default: // float32 -> scaled integer PCM at the session's native bit depth
		scale := float32(int64(1)<<(uint(s.format.BitDepth)-1) - 1)
		if s.format.BitDepth == 0 {
			scale = 32767
		}
		for i := 0; i < sampleCount; i++ {
			bits := binary.LittleEndian.Uint32(frame[i*4:])
			f := math.Float32frombits(bits)
			data[i] = int(f * scale)
		}
	}

	buf := &audio.IntBuffer{
		Data: data,
		Format: &audio.Format{
			NumChannels: s.format.Channels,
			SampleRate:  s.format.SampleRate,
		},
		SourceBitDepth: s.format.BitDepth,
	}

	if err := s.enc.Write(buf); err != nil {
		wrapped := fmt.Errorf("ring: wav write: %w", err)
		s.writeErr.Store(&wrapped)
		return
	}

	channels := s.format.Channels
	if channels < 1 {
		channels = 1
	}
	s.frames.Add(uint64(sampleCount / channels))
}

// Close flushes and closes the WAV file, releasing the writer goroutine.
// Idempotent.
func (s *Sink) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if err := s.enc.Close(); err != nil {
			closeErr = fmt.Errorf("ring: wav encoder close: %w", err)
		}
		if err := s.file.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("ring: wav file close: %w", err)
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return s.Err()
}
