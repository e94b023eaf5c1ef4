package types

import (
	"strings"
	"time"
)

// NoteKind identifies which variant a Note holds.
type NoteKind string

const (
	NoteTip     NoteKind = "tip"
	NoteQA      NoteKind = "qa"
	NoteContext NoteKind = "context"
)

// Note is an immutable artifact produced from a tool call.
//
// For qa notes Content holds the answer and Question the question.
// For context notes Content holds the explanation and Topic the topic.
type Note struct {
	ID       string   `json:"id"`
	Kind     NoteKind `json:"type"`
	Content  string   `json:"content"`
	Question string   `json:"question,omitempty"`
	Topic    string   `json:"topic,omitempty"`
}

// Label renders the note as one line, used for prompts and CLI output.
func (n Note) Label() string {
	switch n.Kind {
	case NoteQA:
		return "P: " + n.Question + " R: " + n.Content
	case NoteContext:
		return n.Topic + ": " + n.Content
	default:
		return n.Content
	}
}

// SessionRecord is the durable summary of one finished session.
type SessionRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"date"`
	Transcript string    `json:"transcript"`
	Notes      []Note    `json:"notes"`
	Report     string    `json:"report"`
}

// NotesText flattens notes into a bullet list.
func NotesText(notes []Note) string {
	var b strings.Builder
	for _, n := range notes {
		b.WriteString("- [")
		b.WriteString(string(n.Kind))
		b.WriteString("] ")
		b.WriteString(n.Label())
		b.WriteByte('\n')
	}
	return b.String()
}
