package voice

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays speech on the default output device. Only one oto context
// may exist per process, so create a single OtoPlayer and share it.
type OtoPlayer struct {
	ctx *oto.Context

	// Playing is serialized; Speaker cancels the previous utterance first.
	mu sync.Mutex
}

func NewOtoPlayer() (*OtoPlayer, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &OtoPlayer{ctx: otoCtx}, nil
}

func (p *OtoPlayer) Play(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
