// Package tts synthesizes speech with Cartesia.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/livenotes/pkg/core/voice"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"
	cartesiaModel   = "sonic-3"

	// Cartesia accepts speeds in [0.6, 1.5].
	minSpeed = 0.6
	maxSpeed = 1.5
)

// Default voice ID - users should provide their own voice IDs
const defaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"

// Cartesia implements voice.Synthesizer with the /tts/bytes endpoint.
type Cartesia struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewCartesia creates a Cartesia synthesizer. An empty baseURL uses the
// public API.
func NewCartesia(apiKey, baseURL string) *Cartesia {
	return NewCartesiaWithClient(apiKey, baseURL, &http.Client{})
}

// NewCartesiaWithClient creates a Cartesia synthesizer with a custom HTTP client.
func NewCartesiaWithClient(apiKey, baseURL string, client *http.Client) *Cartesia {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = cartesiaBaseURL
	}
	return &Cartesia{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   "es",
		httpClient: client,
	}
}

// Synthesize returns raw pcm_s16le audio at voice.SampleRate.
func (c *Cartesia) Synthesize(ctx context.Context, text string, opts voice.Options) ([]byte, error) {
	voiceID := opts.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	reqBody := cartesiaTTSRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice: cartesiaVoiceSpec{
			Mode: "id",
			ID:   voiceID,
		},
		OutputFormat: buildOutputFormat(voice.SampleRate),
		Language:     c.language,
	}
	if opts.Rate != 0 && opts.Rate != 1 {
		reqBody.GenerationConfig = &cartesiaGenerationConfig{Speed: speedForRate(opts.Rate)}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return []byte{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cartesia error %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

type cartesiaTTSRequest struct {
	ModelID          string                    `json:"model_id"`
	Transcript       string                    `json:"transcript"`
	Voice            cartesiaVoiceSpec         `json:"voice"`
	OutputFormat     cartesiaOutputFormat      `json:"output_format"`
	Language         string                    `json:"language,omitempty"`
	GenerationConfig *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Speed float64 `json:"speed,omitempty"`
}

func buildOutputFormat(sampleRate int) cartesiaOutputFormat {
	if sampleRate == 0 {
		sampleRate = 24000
	}
	return cartesiaOutputFormat{
		Container:  "raw",
		Encoding:   "pcm_s16le",
		SampleRate: sampleRate,
	}
}

// speedForRate maps a 0.5-2.0 playback rate onto the range Cartesia accepts.
func speedForRate(rate float64) float64 {
	if rate < minSpeed {
		return minSpeed
	}
	if rate > maxSpeed {
		return maxSpeed
	}
	return rate
}
