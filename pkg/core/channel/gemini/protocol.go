package gemini

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/livenotes/pkg/core/audio"
	"github.com/vango-go/livenotes/pkg/core/channel"
	"github.com/vango-go/livenotes/pkg/core/types"
)

// Live API uses camelCase for JSON field names.

type clientSetupMessage struct {
	Setup liveSetup `json:"setup"`
}

type liveSetup struct {
	Model                   string        `json:"model"`
	GenerationConfig        liveGenConfig `json:"generationConfig"`
	SystemInstruction       *liveContent  `json:"systemInstruction,omitempty"`
	Tools                   []liveTool    `json:"tools,omitempty"`
	InputAudioTranscription *struct{}     `json:"inputAudioTranscription,omitempty"`
}

type liveGenConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type liveContent struct {
	Parts []livePart `json:"parts"`
}

type livePart struct {
	Text string `json:"text,omitempty"`
}

type liveTool struct {
	FunctionDeclarations []liveFunctionDecl `json:"functionDeclarations"`
}

type liveFunctionDecl struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parameters  *types.JSONSchema `json:"parameters,omitempty"`
}

type clientRealtimeMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *liveBlob `json:"audio,omitempty"`
}

type liveBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type clientToolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type serverMessage struct {
	SetupComplete *struct{}       `json:"setupComplete,omitempty"`
	ServerContent *serverContent  `json:"serverContent,omitempty"`
	ToolCall      *serverToolCall `json:"toolCall,omitempty"`
	GoAway        *goAway         `json:"goAway,omitempty"`
	Error         *serverError    `json:"error,omitempty"`
}

type serverContent struct {
	InputTranscription *transcription `json:"inputTranscription,omitempty"`
	TurnComplete       bool           `json:"turnComplete,omitempty"`
	Interrupted        bool           `json:"interrupted,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type serverToolCall struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func buildSetup(model string, req channel.OpenRequest) clientSetupMessage {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := liveSetup{
		Model:                   model,
		GenerationConfig:        liveGenConfig{ResponseModalities: []string{"TEXT"}},
		InputAudioTranscription: &struct{}{},
	}
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		setup.SystemInstruction = &liveContent{Parts: []livePart{{Text: s}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]liveFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, liveFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
		setup.Tools = []liveTool{{FunctionDeclarations: decls}}
	}
	return clientSetupMessage{Setup: setup}
}

func buildAudio(frame audio.Frame) clientRealtimeMessage {
	return clientRealtimeMessage{RealtimeInput: realtimeInput{Audio: &liveBlob{
		MIMEType: audio.MimeType,
		Data:     base64.StdEncoding.EncodeToString(frame.Bytes()),
	}}}
}

func buildToolAck(calls []channel.ToolInvocation) clientToolResponseMessage {
	resp := make([]functionResponse, 0, len(calls))
	for _, c := range calls {
		resp = append(resp, functionResponse{
			ID:       c.ID,
			Name:     c.Name,
			Response: map[string]any{"result": "ok"},
		})
	}
	return clientToolResponseMessage{ToolResponse: toolResponse{FunctionResponses: resp}}
}

// decoded is the result of decoding one server message.
type decoded struct {
	events        []channel.Event
	setupComplete bool
	goAway        *goAway
	toolCalls     []channel.ToolInvocation
}

func decodeServerMessage(data []byte) (decoded, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return decoded{}, fmt.Errorf("decode server message: %w", err)
	}
	var out decoded
	if msg.Error != nil {
		return decoded{}, fmt.Errorf("server error %d: %s", msg.Error.Code, msg.Error.Message)
	}
	if msg.SetupComplete != nil {
		out.setupComplete = true
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			out.events = append(out.events, channel.TranscriptDelta{Text: sc.InputTranscription.Text})
		}
		if sc.TurnComplete {
			out.events = append(out.events, channel.TurnComplete{})
		}
	}
	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]channel.ToolInvocation, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			calls = append(calls, channel.ToolInvocation{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		out.toolCalls = calls
		out.events = append(out.events, channel.ToolCall{Calls: calls})
	}
	out.goAway = msg.GoAway
	return out, nil
}
