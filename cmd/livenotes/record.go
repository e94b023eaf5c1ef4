package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/core/types"
)

func newRecordCmd(a *app) *cobra.Command {
	var (
		duration   time.Duration
		transcript bool
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Run one session in the terminal and print notes as they arrive",
		Long: `record starts a session immediately, prints notes while it runs and the
summary once it is finalized. Interrupt to end the session early; it is still
summarized and saved to the history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if duration > 0 {
				a.cfg.SessionDuration = duration
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newServices(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			orchCtx, stopOrch := context.WithCancel(context.WithoutCancel(ctx))
			defer stopOrch()
			go func() { _ = svc.orch.Run(orchCtx) }()

			p := &sessionPrinter{out: cmd.OutOrStdout(), transcript: transcript}
			_, recErr := record(ctx, svc.orch, p)

			stopOrch()
			<-svc.orch.Done()
			return recErr
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Session length (overrides LIVENOTES_SESSION_DURATION)")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Also print the transcript as it grows")
	return cmd
}

type recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Subscribe() (<-chan live.Event, func())
}

var errOrchestratorStopped = errors.New("orchestrator stopped before the session was saved")

// record starts a session and follows it until its record is saved. When ctx
// is cancelled the session is stopped and record keeps waiting for the
// finalized record.
func record(ctx context.Context, r recorder, p *sessionPrinter) (types.SessionRecord, error) {
	events, unsubscribe := r.Subscribe()
	defer unsubscribe()

	if err := r.Start(ctx); err != nil {
		return types.SessionRecord{}, fmt.Errorf("start session: %w", err)
	}
	p.started()

	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			p.stopping()
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			err := r.Stop(stopCtx)
			cancel()
			if err != nil {
				// The session may already have ended on its own.
				p.printf("stop: %v\n", err)
			}
		case ev, ok := <-events:
			if !ok {
				return types.SessionRecord{}, errOrchestratorStopped
			}
			if fin, ok := ev.(*live.SessionFinalizedEvent); ok {
				p.finalized(fin)
				return fin.Record, nil
			}
			p.event(ev)
		}
	}
}

// sessionPrinter renders observer events as terminal lines.
type sessionPrinter struct {
	out        io.Writer
	transcript bool

	seen        map[string]bool
	activeID    string
	transcribed int
}

func (p *sessionPrinter) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *sessionPrinter) started() {
	p.printf("Session started. Press Ctrl+C to finish early.\n")
}

func (p *sessionPrinter) stopping() {
	p.printf("\nStopping session...\n")
}

func (p *sessionPrinter) event(ev live.Event) {
	switch e := ev.(type) {
	case *live.NotesUpdatedEvent:
		if p.seen == nil {
			p.seen = map[string]bool{}
		}
		for _, n := range e.Archived {
			if p.seen[n.ID] {
				continue
			}
			p.seen[n.ID] = true
			if n.ID == p.activeID {
				continue
			}
			p.printf("+ [%s] %s\n", n.Kind, n.Label())
		}
		if e.Active != nil && e.Active.ID != p.activeID {
			p.activeID = e.Active.ID
			p.printf("> [%s] %s\n", e.Active.Kind, e.Active.Label())
		}
	case *live.TranscriptUpdatedEvent:
		if !p.transcript {
			return
		}
		if len(e.Transcript) < p.transcribed {
			p.transcribed = 0
		}
		if delta := e.Transcript[p.transcribed:]; delta != "" {
			p.printf("%s", delta)
		}
		p.transcribed = len(e.Transcript)
	case *live.TimerTickEvent:
		if e.RemainingSeconds > 0 && e.RemainingSeconds%60 == 0 {
			p.printf("-- %d:00 remaining\n", e.RemainingSeconds/60)
		}
	case *live.SessionErrorEvent:
		p.printf("! %s: %s\n", e.Type, e.Message)
	}
}

func (p *sessionPrinter) finalized(e *live.SessionFinalizedEvent) {
	rec := e.Record
	p.printf("\nSession saved (%s): %s\n", e.Reason, rec.Title)
	if report := strings.TrimSpace(rec.Report); report != "" {
		p.printf("\n%s\n", report)
	}
}
