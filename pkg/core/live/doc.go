// Package live runs one bounded note-taking session at a time.
//
// A session streams microphone audio to a live model and turns the model's
// tool calls into notes while a countdown runs. When the countdown expires or
// the user stops, the transcript and notes are summarized into a record that
// is prepended to the history.
//
// # Architecture
//
//   - Orchestrator: owns the session state machine and the note model
//   - Interpreter: applies inbound channel events to the note model
//   - Timer: the one-shot session countdown, advanced by the run loop's ticker
//
// # Data Flow
//
//	Microphone → audio.Stream → channel.Handle.Send
//	                                   │
//	channel.Handle.Events → Interpreter → notes.Model → observers
//	                            │
//	                            └── Speaker (optional)
//
//	stop / timeout → teardown → Finalizer → History → session.finalized
//
// # State Machine
//
//	IDLE → STARTING → RUNNING → STOPPING → FINALIZING → IDLE
//	           │
//	           └── IDLE (device or channel failure)
//
// # Usage
//
//	opener, err := audio.NewMalgoOpener()
//	...
//	orch, err := live.New(live.DefaultConfig(), live.Deps{
//	    Audio:     &audio.Capture{Opener: opener},
//	    Channel:   channel.NewAdapter(&gemini.Dialer{APIKey: key, Model: model}, channel.Config{}, logger, m),
//	    Finalizer: finalizer,
//	    History:   store,
//	})
//	go orch.Run(ctx)
//
//	events, unsubscribe := orch.Subscribe()
//	defer unsubscribe()
//	if err := orch.Start(ctx); err != nil {
//	    return err
//	}
//	for ev := range events {
//	    if f, ok := ev.(*live.SessionFinalizedEvent); ok {
//	        fmt.Println(f.Record.Title)
//	    }
//	}
package live
