package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	opts  []Options
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(text), nil
}

// blockingPlayer plays until cancelled and reports each outcome.
type blockingPlayer struct {
	started chan string
	ended   chan error
}

func newBlockingPlayer() *blockingPlayer {
	return &blockingPlayer{started: make(chan string, 8), ended: make(chan error, 8)}
}

func (p *blockingPlayer) Play(ctx context.Context, pcm []byte) error {
	p.started <- string(pcm)
	<-ctx.Done()
	p.ended <- ctx.Err()
	return ctx.Err()
}

func waitString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		return ""
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		return nil
	}
}

func TestSpeaker_NewUtteranceCancelsPrevious(t *testing.T) {
	synth := &fakeSynth{}
	player := newBlockingPlayer()
	s := NewSpeaker(synth, player, nil, nil)
	defer s.Close()

	s.Speak("primera", Options{Rate: 1})
	if got := waitString(t, player.started); got != "primera" {
		t.Fatalf("started %q", got)
	}

	s.Speak("segunda", Options{VoiceID: "v", Rate: 1.5})
	if err := waitErr(t, player.ended); !errors.Is(err, context.Canceled) {
		t.Fatalf("first utterance ended with %v, want canceled", err)
	}
	if got := waitString(t, player.started); got != "segunda" {
		t.Fatalf("started %q", got)
	}

	synth.mu.Lock()
	opts := synth.opts[1]
	synth.mu.Unlock()
	if opts.VoiceID != "v" || opts.Rate != 1.5 {
		t.Fatalf("opts = %#v", opts)
	}
}

func TestSpeaker_CancelAndClose(t *testing.T) {
	player := newBlockingPlayer()
	s := NewSpeaker(&fakeSynth{}, player, nil, nil)

	s.Speak("hola", Options{})
	waitString(t, player.started)
	s.Cancel()
	if err := waitErr(t, player.ended); !errors.Is(err, context.Canceled) {
		t.Fatalf("ended with %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s.Speak("after close", Options{})
	select {
	case got := <-player.started:
		t.Fatalf("played %q after close", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSpeaker_SkipsBlankText(t *testing.T) {
	synth := &fakeSynth{}
	s := NewSpeaker(synth, newBlockingPlayer(), nil, nil)
	s.Speak("   ", Options{})
	s.Close()
	if len(synth.texts) != 0 {
		t.Fatalf("synthesized %v", synth.texts)
	}
}

func TestSpeaker_SynthesisErrorIsAbsorbed(t *testing.T) {
	synth := &fakeSynth{err: errors.New("boom")}
	player := newBlockingPlayer()
	s := NewSpeaker(synth, player, nil, nil)
	s.Speak("hola", Options{})
	s.Close()
	select {
	case got := <-player.started:
		t.Fatalf("played %q despite synthesis error", got)
	default:
	}
}
