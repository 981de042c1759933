package pcm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func int16Bytes(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func float32Bytes(samples ...float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func TestDecodeMono_Int16MonoPassesThrough(t *testing.T) {
	frame := Frame{
		Format:  Format{SampleRate: 16000, Channels: 1, Encoding: EncodingInt16},
		Samples: int16Bytes(32767, -32768, 0),
	}
	out := DecodeMono(frame)
	assert.InDelta(t, 1.0, out[0], 0.001)
	assert.InDelta(t, -1.0, out[1], 0.001)
	assert.InDelta(t, 0.0, out[2], 0.001)
}

func TestDecodeMono_StereoDownmixIsArithmeticMean(t *testing.T) {
	frame := Frame{
		Format:  Format{SampleRate: 16000, Channels: 2, Encoding: EncodingInt16},
		Samples: int16Bytes(32767, -32767), // one stereo frame: L=max, R=-max
	}
	out := DecodeMono(frame)
	assert.InDelta(t, 0.0, out[0], 0.001)
}

func TestDecodeMono_Float32Passthrough(t *testing.T) {
	frame := Frame{
		Format:  Format{SampleRate: 16000, Channels: 1, Encoding: EncodingFloat32},
		Samples: float32Bytes(0.5, -0.25),
	}
	out := DecodeMono(frame)
	assert.InDelta(t, 0.5, out[0], 0.0001)
	assert.InDelta(t, -0.25, out[1], 0.0001)
}

func TestDecodeMonoInto_ReusesCapacitySufficientBuffer(t *testing.T) {
	frame := Frame{
		Format:  Format{SampleRate: 16000, Channels: 1, Encoding: EncodingInt16},
		Samples: int16Bytes(100, 200, 300),
	}
	dst := make([]float32, 0, 3)
	out := DecodeMonoInto(frame, dst)
	assert.Len(t, out, 3)
	assert.True(t, &dst[:1][0] == &out[0], "output should share dst's backing array")
}

func TestEncoding_String(t *testing.T) {
	assert.Equal(t, "float32", EncodingFloat32.String())
	assert.Equal(t, "int16", EncodingInt16.String())
}
