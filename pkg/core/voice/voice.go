// Package voice reads note text aloud.
package voice

import "context"

// SampleRate is the playback rate for synthesized speech.
const SampleRate = 24000

// Options select the voice and playback speed of one utterance.
type Options struct {
	VoiceID string
	// Rate is the speed multiplier, 0.5 to 2.0. Zero means 1.0.
	Rate float64
}

// Synthesizer converts text into mono pcm_s16le audio at SampleRate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}

// Player plays mono pcm_s16le audio at SampleRate. Play blocks until the
// audio has finished or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}
