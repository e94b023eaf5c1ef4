package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/core/types"
)

type fakeRecorder struct {
	events   chan live.Event
	startErr error
	onStart  func(chan<- live.Event)

	mu    sync.Mutex
	stops int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{events: make(chan live.Event, 16)}
}

func (f *fakeRecorder) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.onStart != nil {
		f.onStart(f.events)
	}
	return nil
}

func (f *fakeRecorder) Stop(context.Context) error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.events <- &live.SessionFinalizedEvent{
		Record: types.SessionRecord{ID: "rec-1", Title: "Sesión corta", Report: "Informe"},
		Reason: live.ReasonManual,
	}
	return nil
}

func (f *fakeRecorder) Subscribe() (<-chan live.Event, func()) {
	return f.events, func() {}
}

func (f *fakeRecorder) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func TestRecord_PrintsNotesAndSummary(t *testing.T) {
	rec := newFakeRecorder()
	rec.onStart = func(events chan<- live.Event) {
		tip := types.Note{ID: "n1", Kind: types.NoteTip, Content: "Beber agua"}
		qa := types.Note{ID: "n2", Kind: types.NoteQA, Question: "¿Qué hora es?", Content: "Las tres"}
		events <- &live.NotesUpdatedEvent{Archived: []types.Note{tip}}
		events <- &live.NotesUpdatedEvent{Archived: []types.Note{tip}, Active: &qa}
		events <- &live.NotesUpdatedEvent{Archived: []types.Note{tip, qa}}
		events <- &live.TimerTickEvent{RemainingSeconds: 540}
		events <- &live.TimerTickEvent{RemainingSeconds: 539}
		events <- &live.SessionFinalizedEvent{
			Record: types.SessionRecord{ID: "rec-1", Title: "Sesión 19/10/2026 10:00", Report: "## Resumen"},
			Reason: live.ReasonTimeout,
		}
	}

	var out bytes.Buffer
	got, err := record(context.Background(), rec, &sessionPrinter{out: &out})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got.ID != "rec-1" {
		t.Fatalf("record id=%q", got.ID)
	}

	text := out.String()
	for _, want := range []string{
		"+ [tip] Beber agua",
		"> [qa] P: ¿Qué hora es? R: Las tres",
		"-- 9:00 remaining",
		"Session saved (timeout): Sesión 19/10/2026 10:00",
		"## Resumen",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Count(text, "Beber agua") != 1 || strings.Count(text, "Las tres") != 1 {
		t.Fatalf("notes printed more than once:\n%s", text)
	}
	if rec.stopCount() != 0 {
		t.Fatalf("Stop called %d times for a session that ended on its own", rec.stopCount())
	}
}

func TestRecord_CancelStopsAndWaitsForRecord(t *testing.T) {
	rec := newFakeRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	rec.onStart = func(chan<- live.Event) { cancel() }

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := record(ctx, rec, &sessionPrinter{out: &out})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("record did not return")
	}
	if rec.stopCount() != 1 {
		t.Fatalf("stops=%d, want 1", rec.stopCount())
	}
	if !strings.Contains(out.String(), "Session saved (manual): Sesión corta") {
		t.Fatalf("out=%q", out.String())
	}
}

func TestRecord_StartFailure(t *testing.T) {
	rec := newFakeRecorder()
	rec.startErr = errors.New("no microphone")

	_, err := record(context.Background(), rec, &sessionPrinter{out: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "no microphone") {
		t.Fatalf("err=%v", err)
	}
}

func TestRecord_OrchestratorStopped(t *testing.T) {
	rec := newFakeRecorder()
	rec.onStart = func(chan<- live.Event) { close(rec.events) }

	_, err := record(context.Background(), rec, &sessionPrinter{out: &bytes.Buffer{}})
	if !errors.Is(err, errOrchestratorStopped) {
		t.Fatalf("err=%v", err)
	}
}

func TestSessionPrinter_TranscriptDeltas(t *testing.T) {
	var out bytes.Buffer
	p := &sessionPrinter{out: &out, transcript: true}
	p.event(&live.TranscriptUpdatedEvent{Transcript: "Hola"})
	p.event(&live.TranscriptUpdatedEvent{Transcript: "Hola mundo "})
	p.event(&live.TranscriptUpdatedEvent{Transcript: ""})
	p.event(&live.TranscriptUpdatedEvent{Transcript: "Otra"})
	if got := out.String(); got != "Hola mundo Otra" {
		t.Fatalf("out=%q", got)
	}
}
