package audio

import "math"

// Level summarizes the loudness of a frame. Both values are in [0, 1].
type Level struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// MeasureLevel computes the RMS energy and peak amplitude of f.
func MeasureLevel(f Frame) Level {
	if len(f) == 0 {
		return Level{}
	}
	var sum, peak float64
	for _, s := range f {
		v := float64(s) / 32768.0
		sum += v * v
		// float64 avoids overflow when negating -32768
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return Level{RMS: math.Sqrt(sum / float64(len(f))), Peak: peak}
}
