// Package channel adapts a duplex streaming connection to the remote live
// model into an ordered outbound audio queue and an ordered inbound event stream.
package channel

import "errors"

// Event is an inbound message from the remote service.
type Event interface {
	EventType() string
}

// TranscriptDelta carries a fragment of the input transcription.
type TranscriptDelta struct {
	Text string `json:"text"`
}

func (e TranscriptDelta) EventType() string { return "transcript_delta" }

// TurnComplete marks a speech segment boundary.
type TurnComplete struct{}

func (e TurnComplete) EventType() string { return "turn_complete" }

// ToolInvocation is one named call with its raw arguments.
type ToolInvocation struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// StringArg returns args[key] when it is a non-empty string.
func (t ToolInvocation) StringArg(key string) (string, bool) {
	v, ok := t.Args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ToolCall carries one or more invocations received together.
type ToolCall struct {
	Calls []ToolInvocation `json:"calls"`
}

func (e ToolCall) EventType() string { return "tool_call" }

// ChannelError is terminal: the channel failed.
type ChannelError struct {
	Err error
}

func (e ChannelError) EventType() string { return "channel_error" }

// ChannelClosed is terminal: the channel ended without error.
type ChannelClosed struct {
	Reason string
}

func (e ChannelClosed) EventType() string { return "channel_closed" }

// IsTerminal reports whether ev ends the event stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case ChannelError, *ChannelError, ChannelClosed, *ChannelClosed:
		return true
	default:
		return false
	}
}

// ErrClosed is returned by Transport.Recv when the peer closed the stream normally.
var ErrClosed = errors.New("channel closed")
