// Package audio captures microphone input and turns it into fixed-size
// mono 16 kHz signed 16-bit PCM frames for the streaming channel.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the rate every Frame is delivered at.
	SampleRate = 16000
	// FrameSamples is the number of samples in one Frame.
	FrameSamples = 4096
	// MimeType describes Frame.Bytes on the wire.
	MimeType = "audio/pcm;rate=16000"
)

// Frame is one block of mono PCM samples.
type Frame []int16

// Bytes encodes the frame as little-endian signed 16-bit PCM.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Duration returns the frame length in seconds at SampleRate.
func (f Frame) Duration() float64 {
	return float64(len(f)) / SampleRate
}

// FloatToPCM16 scales a float sample by 32767 and clamps it to the int16 range.
// NaN becomes silence.
func FloatToPCM16(v float32) int16 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	s := math.Round(float64(v) * 32767)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}

// DecodeF32LE decodes little-endian float32 samples, as delivered by the
// capture device.
func DecodeF32LE(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
