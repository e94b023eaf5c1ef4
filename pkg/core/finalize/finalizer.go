// Package finalize turns a finished session into a SessionRecord.
package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/metrics"
)

const (
	// NoTranscriptReport is the report of a session where nothing was heard.
	NoTranscriptReport = "No se registró ninguna transcripción durante esta sesión."
	// ErrorReport is the report of a session whose summary could not be generated.
	ErrorReport = "No se pudo generar el informe de esta sesión."
	// ErrorMarker is appended to the title of a degraded record.
	ErrorMarker = "(error)"

	titleLayout = "02/01/2006 15:04"
)

// Summary is the title and markdown report produced for a session.
type Summary struct {
	Title  string `json:"title"`
	Report string `json:"report"`
}

// Summarizer makes the one-shot summarization call.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, notes []types.Note) (Summary, error)
}

// Finalizer builds session records. The zero value is usable except for
// Summarizer, which must be set unless every session is empty.
type Finalizer struct {
	Summarizer Summarizer
	// Timeout bounds the summarization call. Zero means no bound.
	Timeout time.Duration
	Now     func() time.Time
	NewID   func() string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Finalize always returns a record with a fresh id and the current time.
// Summarization failures yield a degraded record and are only logged.
func (f *Finalizer) Finalize(ctx context.Context, transcript string, notes []types.Note) types.SessionRecord {
	start := time.Now()
	rec := types.SessionRecord{
		ID:         f.newID(),
		CreatedAt:  f.now(),
		Transcript: transcript,
		Notes:      append([]types.Note{}, notes...),
	}
	stamp := rec.CreatedAt.Format(titleLayout)

	if strings.TrimSpace(transcript) == "" {
		rec.Title = "Sesión " + stamp
		rec.Report = NoTranscriptReport
		f.Metrics.RecordFinalize("empty", time.Since(start))
		return rec
	}

	summary, err := f.summarize(ctx, transcript, rec.Notes)
	if err != nil {
		f.logger().Error("session summary failed", "id", rec.ID, "error", core.NewFinalizeFailedError(err))
		f.Metrics.RecordFinalize("degraded", time.Since(start))
		return Degraded(rec.ID, rec.CreatedAt, transcript, rec.Notes)
	}
	rec.Title = summary.Title
	rec.Report = summary.Report
	f.Metrics.RecordFinalize("ok", time.Since(start))
	return rec
}

// Degraded is the record saved for a session that could not be summarized.
func Degraded(id string, createdAt time.Time, transcript string, notes []types.Note) types.SessionRecord {
	return types.SessionRecord{
		ID:         id,
		Title:      "Sesión " + createdAt.Format(titleLayout) + " " + ErrorMarker,
		CreatedAt:  createdAt,
		Transcript: transcript,
		Notes:      append([]types.Note{}, notes...),
		Report:     ErrorReport,
	}
}

func (f *Finalizer) summarize(ctx context.Context, transcript string, notes []types.Note) (summary Summary, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("summarizer panicked: %v", v)
		}
	}()
	if f.Summarizer == nil {
		return Summary{}, fmt.Errorf("no summarizer configured")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	summary, err = f.Summarizer.Summarize(ctx, transcript, notes)
	if err != nil {
		return Summary{}, err
	}
	summary.Title = strings.TrimSpace(summary.Title)
	summary.Report = strings.TrimSpace(summary.Report)
	if summary.Title == "" || summary.Report == "" {
		return Summary{}, fmt.Errorf("summary is missing title or report")
	}
	return summary, nil
}

func (f *Finalizer) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Finalizer) newID() string {
	if f.NewID != nil {
		return f.NewID()
	}
	return uuid.NewString()
}

func (f *Finalizer) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
