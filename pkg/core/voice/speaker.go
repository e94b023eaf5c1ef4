package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/livenotes/pkg/metrics"
)

// Speaker plays one utterance at a time. A new utterance cancels the one in
// progress; there is no queue.
type Speaker struct {
	synth   Synthesizer
	player  Player
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
	wg     sync.WaitGroup
	closed bool
}

func NewSpeaker(synth Synthesizer, player Player, logger *slog.Logger, m *metrics.Metrics) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{synth: synth, player: player, logger: logger, metrics: m}
}

// Speak starts synthesizing and playing text in the background.
func (s *Speaker) Speak(text string, opts Options) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.seq++
	seq := s.seq
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.finish(seq, cancel)
		s.metrics.RecordSpeech(s.say(ctx, text, opts))
	}()
}

func (s *Speaker) say(ctx context.Context, text string, opts Options) string {
	pcm, err := s.synth.Synthesize(ctx, text, opts)
	if err == nil && len(pcm) > 0 {
		err = s.player.Play(ctx, pcm)
	}
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		s.logger.Warn("speech failed", "error", err)
		return "error"
	}
}

func (s *Speaker) finish(seq uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	if s.seq == seq {
		s.cancel = nil
	}
	s.mu.Unlock()
}

// Cancel stops the utterance in progress, if any.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

// Close cancels playback and waits for background work to exit.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
