package pcm

import (
	"encoding/binary"
	"math"
)

// DecodeMono decodes a native-format interleaved frame into mono float32
// samples using an arithmetic-mean downmix. It allocates the output slice;
// callers that decode repeatedly should pass a reusable destination via
// DecodeMonoInto.
func DecodeMono(frame Frame) []float32 {
	channels := frame.Format.Channels
	if channels < 1 {
		channels = 1
	}
	frames := frameCount(frame, channels)
	dst := make([]float32, frames)
	DecodeMonoInto(frame, dst)
	return dst
}

// DecodeMonoInto decodes into a caller-provided buffer, resliced to the
// exact length used. It allocates only when dst has less than
// frameCount(frame) capacity. The capture drain goroutine uses it with a
// reused buffer.
func DecodeMonoInto(frame Frame, dst []float32) []float32 {
	channels := frame.Format.Channels
	if channels < 1 {
		channels = 1
	}
	frames := frameCount(frame, channels)
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]

	switch frame.Format.Encoding {
	case EncodingInt16:
		for i := 0; i < frames; i++ {
			sum := float32(0)
			for c := 0; c < channels; c++ {
				off := (i*channels + c) * 2
				v := int16(binary.LittleEndian.Uint16(frame.Samples[off:]))
				sum += float32(v) / 32768.0
			}
			dst[i] = sum / float32(channels)
		}
	default: // float32
		for i := 0; i < frames; i++ {
			sum := float32(0)
			for c := 0; c < channels; c++ {
				off := (i*channels + c) * 4
				bits := binary.LittleEndian.Uint32(frame.Samples[off:])
				sum += math.Float32frombits(bits)
			}
			dst[i] = sum / float32(channels)
		}
	}
	return dst
}

func frameCount(frame Frame, channels int) int {
	bytesPerSample := 4
	if frame.Format.Encoding == EncodingInt16 {
		bytesPerSample = 2
	}
	return len(frame.Samples) / (bytesPerSample * channels)
}
