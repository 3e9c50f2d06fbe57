package audio

import (
	"encoding/binary"
	"math"
)

// ToLinear16 converts float samples to signed 16-bit PCM. Samples are clamped
// to [-1, 1]; positive values scale by 32767 and negative values by 32768 so
// that both extremes map exactly onto the int16 range.
func ToLinear16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = linear16(s)
	}
	return out
}

func linear16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s >= 0 {
		return int16(s * math.MaxInt16)
	}
	return int16(s * -math.MinInt16)
}

// LittleEndian serializes PCM samples as the raw bytes the STT backend expects.
func LittleEndian(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Int16ToFloat converts little-endian 16-bit PCM to floats by dividing by the
// maximum positive sample value.
func Int16ToFloat(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

func int16sToFloat(buf []int16) []float32 {
	out := make([]float32, len(buf))
	for i, s := range buf {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Level returns the RMS of samples, capped at 1.
func Level(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return float32(min(rms, 1))
}
