package finalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/livenotes/pkg/core/types"
)

const summaryInstruction = `Eres un asistente que resume sesiones de conversación.
Recibirás la transcripción de una sesión y las notas tomadas durante ella.
Devuelve un objeto JSON con dos campos:
- "title": un título breve y descriptivo de la sesión.
- "report": un informe en markdown con los puntos principales, las preguntas respondidas y las notas relevantes.`

// GeminiSummarizer calls generateContent with a JSON response schema.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
}

func NewGeminiSummarizer(ctx context.Context, apiKey, model string) (*GeminiSummarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiSummarizer{client: client, model: model}, nil
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, transcript string, notes []types.Note) (Summary, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(transcript, notes)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(summaryInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    summarySchema(),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}
	return ParseSummary(resp.Text())
}

func summarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":  {Type: genai.TypeString},
			"report": {Type: genai.TypeString},
		},
		Required: []string{"title", "report"},
	}
}

// BuildPrompt serializes transcript and notes into a single prompt.
func BuildPrompt(transcript string, notes []types.Note) string {
	var b strings.Builder
	b.WriteString("Transcripción:\n")
	b.WriteString(strings.TrimSpace(transcript))
	b.WriteString("\n\nNotas:\n")
	if len(notes) == 0 {
		b.WriteString("(sin notas)\n")
	} else {
		b.WriteString(types.NotesText(notes))
	}
	return b.String()
}

// ParseSummary decodes a strict {title, report} object, optionally wrapped in
// a markdown code fence. Both fields must be non-empty strings.
func ParseSummary(raw string) (Summary, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return Summary{}, fmt.Errorf("empty summary response")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	var s Summary
	for key, dst := range map[string]*string{"title": &s.Title, "report": &s.Report} {
		v, ok := fields[key]
		if !ok {
			return Summary{}, fmt.Errorf("summary is missing %q", key)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return Summary{}, fmt.Errorf("summary field %q is not a string", key)
		}
		if strings.TrimSpace(*dst) == "" {
			return Summary{}, fmt.Errorf("summary field %q is empty", key)
		}
	}
	return s, nil
}

// stripCodeFence unwraps ```json ... ``` (or a bare ``` fence) around raw.
func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") || !strings.HasSuffix(raw, "```") || len(raw) < 6 {
		return raw
	}
	inner := raw[3 : len(raw)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// Drop the info string ("json") on the opening line.
		if tag := strings.TrimSpace(inner[:nl]); !strings.ContainsAny(tag, "{[") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}
