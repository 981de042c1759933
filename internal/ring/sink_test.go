package ring

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arach/scout/internal/pcm"
)

func int16Frame(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestSink_WritesFrameCountMatchingPushedSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	format := pcm.Format{SampleRate: 16000, Channels: 1, Encoding: pcm.EncodingInt16, BitDepth: 16}

	s, err := NewSink(path, format, 16)
	require.NoError(t, err)

	require.True(t, s.Enqueue(int16Frame(1, 2, 3)))
	require.True(t, s.Enqueue(int16Frame(4, 5)))

	require.NoError(t, s.Close())

	assert.Equal(t, uint64(5), s.FrameCount())
	assert.NoError(t, s.Err())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 5, len(buf.Data))
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	format := pcm.Format{SampleRate: 16000, Channels: 1, Encoding: pcm.EncodingInt16, BitDepth: 16}

	s, err := NewSink(path, format, 4)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func float32Frame(samples ...float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(sample))
	}
	return buf
}

func TestSink_Float32InputScaledToIntPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	format := pcm.Format{SampleRate: 16000, Channels: 1, Encoding: pcm.EncodingFloat32, BitDepth: 16}

	s, err := NewSink(path, format, 4)
	require.NoError(t, err)
	require.True(t, s.Enqueue(float32Frame(1.0, -1.0, 0.0)))
	require.NoError(t, s.Close())

	assert.Equal(t, uint64(3), s.FrameCount())
}
