package live

import (
	"github.com/vango-go/livenotes/pkg/core/types"
)

// Event is the interface for all observer events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every lifecycle transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// TranscriptUpdatedEvent carries the full transcript after a change.
type TranscriptUpdatedEvent struct {
	Transcript string `json:"transcript"`
}

func (e *TranscriptUpdatedEvent) EventType() string { return "transcript.updated" }

// NotesUpdatedEvent carries the archived notes and active note after a change.
type NotesUpdatedEvent struct {
	Archived []types.Note `json:"archived"`
	Active   *types.Note  `json:"active,omitempty"`
}

func (e *NotesUpdatedEvent) EventType() string { return "notes.updated" }

// TimerTickEvent is emitted once per tick while running.
type TimerTickEvent struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

func (e *TimerTickEvent) EventType() string { return "timer.tick" }

// AudioLevelEvent reports the microphone level, throttled.
type AudioLevelEvent struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

func (e *AudioLevelEvent) EventType() string { return "audio.level" }

// SessionErrorEvent is a user-visible failure.
type SessionErrorEvent struct {
	Type    string `json:"error_type"`
	Message string `json:"message"`
}

func (e *SessionErrorEvent) EventType() string { return "session.error" }

// SessionFinalizedEvent is emitted after the record has been added to history.
type SessionFinalizedEvent struct {
	Record types.SessionRecord `json:"record"`
	Reason string              `json:"reason"`
}

func (e *SessionFinalizedEvent) EventType() string { return "session.finalized" }
