package live

import (
	"log/slog"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/channel"
	"github.com/vango-go/livenotes/pkg/core/notes"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/metrics"
)

// Outcome reports what an inbound event changed.
type Outcome struct {
	TranscriptChanged bool
	NotesChanged      bool

	// Terminal is set for ChannelError and ChannelClosed. Err is non-nil
	// only for ChannelError.
	Terminal bool
	Err      error
}

// Interpreter applies inbound channel events to the note model and
// forwards speakable text to the speech sink.
type Interpreter struct {
	model   *notes.Model
	tools   []types.Tool
	speak   func(text string)
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewInterpreter binds an interpreter to one session. tools is the set that
// was declared when the channel opened; calls to anything else are dropped.
// speak may be nil.
func NewInterpreter(model *notes.Model, tools []types.Tool, speak func(string), logger *slog.Logger, m *metrics.Metrics) *Interpreter {
	if speak == nil {
		speak = func(string) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{model: model, tools: tools, speak: speak, logger: logger, metrics: m}
}

// Handle applies one event. Events must be passed in arrival order.
func (in *Interpreter) Handle(ev channel.Event) Outcome {
	switch e := ev.(type) {
	case channel.TranscriptDelta:
		if e.Text == "" {
			return Outcome{}
		}
		in.model.AppendTranscript(e.Text)
		in.metrics.RecordTranscript(len(e.Text))
		return Outcome{TranscriptChanged: true}
	case channel.TurnComplete:
		in.model.AppendTurnBoundary()
		return Outcome{TranscriptChanged: true}
	case channel.ToolCall:
		var out Outcome
		for _, call := range e.Calls {
			if err := in.apply(call); err != nil {
				in.logger.Debug("tool call dropped", "tool", call.Name, "id", call.ID, "error", err)
				in.metrics.RecordToolCallDropped(call.Name)
				continue
			}
			out.NotesChanged = true
		}
		return out
	case channel.ChannelError:
		return Outcome{Terminal: true, Err: e.Err}
	case channel.ChannelClosed:
		return Outcome{Terminal: true}
	default:
		in.logger.Debug("ignoring channel event", "type", ev.EventType())
		return Outcome{}
	}
}

func (in *Interpreter) apply(call channel.ToolInvocation) error {
	if !types.HasTool(in.tools, call.Name) {
		return core.NewToolCallMalformedError(call.Name, "tool not declared for this session")
	}
	switch call.Name {
	case types.ToolAddNote:
		tip, ok := call.StringArg("tip")
		if !ok {
			return core.NewToolCallMalformedError(call.Name, "missing tip")
		}
		in.model.AddTip(tip)
		in.metrics.RecordNote(string(types.NoteTip))
		in.speak("Nota añadida: " + tip)
	case types.ToolAnswerQuestion:
		question, ok := call.StringArg("question")
		if !ok {
			return core.NewToolCallMalformedError(call.Name, "missing question")
		}
		answer, ok := call.StringArg("answer")
		if !ok {
			return core.NewToolCallMalformedError(call.Name, "missing answer")
		}
		in.model.SetActiveQA(question, answer)
		in.metrics.RecordNote(string(types.NoteQA))
		in.speak(answer)
	case types.ToolProvideContext:
		topic, ok := call.StringArg("topic")
		if !ok {
			return core.NewToolCallMalformedError(call.Name, "missing topic")
		}
		explanation, ok := call.StringArg("explanation")
		if !ok {
			return core.NewToolCallMalformedError(call.Name, "missing explanation")
		}
		in.model.SetActiveContext(topic, explanation)
		in.metrics.RecordNote(string(types.NoteContext))
		in.speak(topic + ": " + explanation)
	default:
		return core.NewToolCallMalformedError(call.Name, "unknown tool")
	}
	return nil
}
