// Package notes holds the per-session Note Model: the running transcript,
// the archived notes and the single active qa/context note.
//
// A Model is owned by one goroutine (the session loop) and is not safe for
// concurrent use.
package notes

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vango-go/livenotes/pkg/core/types"
)

// OverwritePolicy decides what happens to the active note when a new qa or
// context note arrives.
type OverwritePolicy string

const (
	// PolicyDrop discards the previous active note.
	PolicyDrop OverwritePolicy = "drop"
	// PolicyAutoArchive moves the previous active note to the archive first.
	PolicyAutoArchive OverwritePolicy = "auto-archive"
)

// ParsePolicy maps a config string to a policy. Unknown values return false.
func ParsePolicy(s string) (OverwritePolicy, bool) {
	switch OverwritePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDrop:
		return PolicyDrop, true
	case PolicyAutoArchive:
		return PolicyAutoArchive, true
	default:
		return "", false
	}
}

// Snapshot is a copy of the model's contents.
type Snapshot struct {
	Transcript string       `json:"transcript"`
	Archived   []types.Note `json:"archived"`
	Active     *types.Note  `json:"active,omitempty"`
}

// Notes returns the archived notes followed by the active note, if any.
func (s Snapshot) Notes() []types.Note {
	out := make([]types.Note, 0, len(s.Archived)+1)
	out = append(out, s.Archived...)
	if s.Active != nil {
		out = append(out, *s.Active)
	}
	return out
}

type Model struct {
	policy     OverwritePolicy
	newID      func() string
	transcript strings.Builder
	archived   []types.Note
	active     *types.Note
}

// Option configures a Model.
type Option func(*Model)

// WithIDFunc overrides note id generation.
func WithIDFunc(fn func() string) Option {
	return func(m *Model) {
		if fn != nil {
			m.newID = fn
		}
	}
}

func New(policy OverwritePolicy, opts ...Option) *Model {
	if policy == "" {
		policy = PolicyDrop
	}
	m := &Model{
		policy: policy,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Policy() OverwritePolicy { return m.policy }

// AppendTranscript appends a transcript fragment as-is.
func (m *Model) AppendTranscript(text string) {
	m.transcript.WriteString(text)
}

// AppendTurnBoundary appends one space.
func (m *Model) AppendTurnBoundary() {
	m.transcript.WriteByte(' ')
}

func (m *Model) Transcript() string {
	return m.transcript.String()
}

// AddTip appends a tip directly to the archive. The active note is untouched.
func (m *Model) AddTip(tip string) types.Note {
	n := types.Note{ID: m.newID(), Kind: types.NoteTip, Content: tip}
	m.archived = append(m.archived, n)
	return n
}

// SetActiveQA replaces the active note with a qa note.
func (m *Model) SetActiveQA(question, answer string) types.Note {
	n := types.Note{ID: m.newID(), Kind: types.NoteQA, Content: answer, Question: question}
	m.replaceActive(n)
	return n
}

// SetActiveContext replaces the active note with a context note.
func (m *Model) SetActiveContext(topic, explanation string) types.Note {
	n := types.Note{ID: m.newID(), Kind: types.NoteContext, Content: explanation, Topic: topic}
	m.replaceActive(n)
	return n
}

func (m *Model) replaceActive(n types.Note) {
	if m.active != nil && m.policy == PolicyAutoArchive {
		m.archived = append(m.archived, *m.active)
	}
	m.active = &n
}

// ArchiveActive moves the active note to the end of the archive.
// It reports false when there was no active note.
func (m *Model) ArchiveActive() bool {
	if m.active == nil {
		return false
	}
	m.archived = append(m.archived, *m.active)
	m.active = nil
	return true
}

func (m *Model) Active() (types.Note, bool) {
	if m.active == nil {
		return types.Note{}, false
	}
	return *m.active, true
}

func (m *Model) Archived() []types.Note {
	return append([]types.Note(nil), m.archived...)
}

func (m *Model) Snapshot() Snapshot {
	s := Snapshot{
		Transcript: m.transcript.String(),
		Archived:   m.Archived(),
	}
	if m.active != nil {
		a := *m.active
		s.Active = &a
	}
	return s
}

// Reset clears all session content. The policy is kept.
func (m *Model) Reset() {
	m.transcript.Reset()
	m.archived = nil
	m.active = nil
}
