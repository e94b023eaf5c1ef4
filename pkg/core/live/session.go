package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/livenotes/pkg/config"
	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/audio"
	"github.com/vango-go/livenotes/pkg/core/channel"
	"github.com/vango-go/livenotes/pkg/core/finalize"
	"github.com/vango-go/livenotes/pkg/core/notes"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/core/voice"
	"github.com/vango-go/livenotes/pkg/metrics"
)

// ChannelOpener opens the duplex channel to the live model.
type ChannelOpener interface {
	Open(ctx context.Context, req channel.OpenRequest) (*channel.Handle, error)
}

// Finalizer turns a finished session into a record. It must always return one.
type Finalizer interface {
	Finalize(ctx context.Context, transcript string, notes []types.Note) types.SessionRecord
}

// HistoryWriter receives finished records, newest first.
type HistoryWriter interface {
	Prepend(ctx context.Context, rec types.SessionRecord) error
}

// Speaker reads note text aloud. Speak must not block.
type Speaker interface {
	Speak(text string, opts voice.Options)
	// Cancel stops any utterance in progress.
	Cancel()
}

// SettingsProvider returns the current user settings. The orchestrator reads
// them once per session, at start.
type SettingsProvider interface {
	Current() config.Settings
}

// Config holds orchestrator tuning.
type Config struct {
	SessionDuration time.Duration
	TickInterval    time.Duration
	// LevelInterval throttles audio.level events.
	LevelInterval   time.Duration
	OverwritePolicy notes.OverwritePolicy
	// ExtraPrompt is appended to the system instruction.
	ExtraPrompt      string
	SubscriberBuffer int
}

// DefaultConfig returns the standard ten minute session configuration.
func DefaultConfig() Config {
	return Config{
		SessionDuration:  600 * time.Second,
		TickInterval:     time.Second,
		LevelInterval:    100 * time.Millisecond,
		OverwritePolicy:  notes.PolicyDrop,
		SubscriberBuffer: 128,
	}
}

// Deps are the collaborators of an Orchestrator. Audio, Channel and
// Finalizer are required.
type Deps struct {
	Audio     audio.Source
	Channel   ChannelOpener
	Finalizer Finalizer
	History   HistoryWriter
	Speaker   Speaker
	Settings  SettingsProvider
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Now and NewTicker default to the wall clock.
	Now       func() time.Time
	NewTicker func(d time.Duration) (<-chan time.Time, func())
	// NewID generates note IDs.
	NewID func() string
}

// Snapshot is a point-in-time view for late-joining observers.
type Snapshot struct {
	State            State        `json:"state"`
	Finalizing       bool         `json:"finalizing"`
	Transcript       string       `json:"transcript"`
	Archived         []types.Note `json:"archived"`
	Active           *types.Note  `json:"active,omitempty"`
	RemainingSeconds int          `json:"remaining_seconds"`
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdArchive
	cmdSnapshot
)

type command struct {
	kind  cmdKind
	reply chan commandResult
}

type commandResult struct {
	err  error
	snap Snapshot
}

type startResult struct {
	seq    uint64
	stream *audio.Stream
	handle *channel.Handle
	err    error
}

type finalizeResult struct {
	record types.SessionRecord
	reason string
}

// activeSession is owned by the run loop.
type activeSession struct {
	seq       uint64
	settings  config.Settings
	tools     []types.Tool
	startedAt time.Time

	stream   *audio.Stream
	handle   *channel.Handle
	events   <-chan channel.Event
	interp   *Interpreter
	pumpDone chan struct{}

	startReply    chan commandResult
	stopRequested bool
	stopReason    string
	stopWaiters   []chan commandResult
}

// Orchestrator runs one live session at a time: it owns the session state
// machine and is the only writer of the note model. All mutation happens on
// the goroutine running Run; other methods send commands to it.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	state   atomic.Int32
	running atomic.Bool

	cmds         chan command
	startResults chan startResult
	finalized    chan finalizeResult
	levels       chan audio.Level
	done         chan struct{}

	// Owned by the run loop.
	model    *notes.Model
	timer    *Timer
	sess     *activeSession
	seq      uint64
	shutdown bool

	subsMu  sync.Mutex
	subs    map[uint64]chan Event
	nextSub uint64
}

// New creates an orchestrator. Call Run to start processing commands.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Audio == nil {
		return nil, errors.New("live: audio source is required")
	}
	if deps.Channel == nil {
		return nil, errors.New("live: channel opener is required")
	}
	if deps.Finalizer == nil {
		return nil, errors.New("live: finalizer is required")
	}

	def := DefaultConfig()
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = def.SessionDuration
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = def.LevelInterval
	}
	if cfg.OverwritePolicy == "" {
		cfg.OverwritePolicy = def.OverwritePolicy
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewTicker == nil {
		deps.NewTicker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}

	var modelOpts []notes.Option
	if deps.NewID != nil {
		modelOpts = append(modelOpts, notes.WithIDFunc(deps.NewID))
	}

	return &Orchestrator{
		cfg:          cfg,
		deps:         deps,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		now:          deps.Now,
		cmds:         make(chan command),
		startResults: make(chan startResult, 1),
		finalized:    make(chan finalizeResult, 1),
		levels:       make(chan audio.Level, 1),
		done:         make(chan struct{}),
		model:        notes.New(cfg.OverwritePolicy, modelOpts...),
		timer:        NewTimer(deps.Now),
		subs:         make(map[uint64]chan Event),
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// IsFinalizing reports whether a finished session is still being summarized.
func (o *Orchestrator) IsFinalizing() bool {
	return o.State() == StateFinalizing
}

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Start begins a session and blocks until it is running or has failed.
// Starting while a session is active or finalizing returns invalid_state.
func (o *Orchestrator) Start(ctx context.Context) error {
	_, err := o.call(ctx, cmdStart)
	return err
}

// Stop ends the starting or running session. It returns once teardown is
// complete; finalization continues in the background.
func (o *Orchestrator) Stop(ctx context.Context) error {
	_, err := o.call(ctx, cmdStop)
	return err
}

// ArchiveActive moves the active note into the archive.
func (o *Orchestrator) ArchiveActive(ctx context.Context) error {
	_, err := o.call(ctx, cmdArchive)
	return err
}

// Snapshot returns the current state, transcript and notes.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	res, err := o.call(ctx, cmdSnapshot)
	return res.snap, err
}

// Subscribe registers an observer. Events are dropped for subscribers that
// fall behind. The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, o.cfg.SubscriberBuffer)
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subsMu.Unlock()

	return ch, func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

func (o *Orchestrator) call(ctx context.Context, kind cmdKind) (commandResult, error) {
	cmd := command{kind: kind, reply: make(chan commandResult, 1)}
	select {
	case o.cmds <- cmd:
	case <-o.done:
		return commandResult{}, errNotRunning()
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-o.done:
		return commandResult{}, errNotRunning()
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

func errNotRunning() error {
	return core.NewInvalidStateError("orchestrator is not running", "not_running")
}

// Run processes commands and session events until ctx is cancelled. On
// cancellation an active session is stopped and finalized before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("live: orchestrator already running")
	}
	defer o.closeSubscribers()
	defer close(o.done)

	ticks, stopTicker := o.deps.NewTicker(o.cfg.TickInterval)
	defer stopTicker()

	o.metrics.SetSessionState(int(StateIdle))
	ctxDone := ctx.Done()

	for {
		if o.shutdown && o.State() == StateIdle {
			o.logger.Debug("orchestrator stopped")
			return nil
		}

		var events <-chan channel.Event
		if o.sess != nil {
			events = o.sess.events
		}

		select {
		case <-ctxDone:
			ctxDone = nil
			o.beginShutdown(ctx)
		case cmd := <-o.cmds:
			o.handleCommand(ctx, cmd)
		case res := <-o.startResults:
			o.handleStartResult(ctx, res)
		case res := <-o.finalized:
			o.handleFinalized(res)
		case ev, ok := <-events:
			if !ok {
				o.sess.events = nil
				continue
			}
			o.handleChannelEvent(ctx, ev)
		case lvl := <-o.levels:
			if o.State() == StateRunning {
				o.emit(&AudioLevelEvent{RMS: lvl.RMS, Peak: lvl.Peak})
			}
		case <-ticks:
			o.handleTick(ctx)
		}
	}
}

func (o *Orchestrator) beginShutdown(ctx context.Context) {
	o.shutdown = true
	switch o.State() {
	case StateStarting:
		o.sess.stopRequested = true
		o.sess.stopReason = ReasonShutdown
	case StateRunning:
		o.stopSession(ctx, ReasonShutdown, nil)
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStart:
		o.handleStart(ctx, cmd)
	case cmdStop:
		switch o.State() {
		case StateStarting:
			o.sess.stopRequested = true
			o.sess.stopReason = ReasonManual
			o.sess.stopWaiters = append(o.sess.stopWaiters, cmd.reply)
		case StateRunning:
			o.stopSession(ctx, ReasonManual, nil)
			cmd.reply <- commandResult{}
		default:
			cmd.reply <- commandResult{err: core.NewInvalidStateError("no session is running", "not_running")}
		}
	case cmdArchive:
		if o.State() != StateRunning {
			cmd.reply <- commandResult{err: core.NewInvalidStateError("no session is running", "not_running")}
			return
		}
		if o.model.ArchiveActive() {
			o.emitNotes()
		}
		cmd.reply <- commandResult{}
	case cmdSnapshot:
		cmd.reply <- commandResult{snap: o.snapshot()}
	}
}

func (o *Orchestrator) handleStart(ctx context.Context, cmd command) {
	if o.shutdown {
		cmd.reply <- commandResult{err: core.NewInvalidStateError("orchestrator is shutting down", "shutting_down")}
		return
	}
	switch o.State() {
	case StateIdle:
	case StateFinalizing:
		cmd.reply <- commandResult{err: core.NewInvalidStateError("previous session is still finalizing", "finalizing")}
		return
	default:
		cmd.reply <- commandResult{err: core.NewInvalidStateError("a session is already active", "session_active")}
		return
	}

	settings := config.DefaultSettings()
	if o.deps.Settings != nil {
		settings = o.deps.Settings.Current()
	}
	tools := types.SessionTools(settings.Contextualize)

	o.seq++
	o.sess = &activeSession{
		seq:        o.seq,
		settings:   settings,
		tools:      tools,
		startReply: cmd.reply,
	}
	o.model.Reset()
	o.setState(StateStarting)
	o.emit(&TranscriptUpdatedEvent{})
	o.emitNotes()

	req := channel.OpenRequest{
		Tools:        tools,
		SystemPrompt: SystemPrompt(settings.Contextualize, o.cfg.ExtraPrompt),
	}
	o.logger.Info("session starting", "session", o.seq, "contextualize", settings.Contextualize, "voice_response", settings.VoiceResponse)
	go o.startSession(ctx, o.seq, req)
}

// startSession acquires audio first, then opens the channel. Audio is
// released if the channel cannot be opened.
func (o *Orchestrator) startSession(ctx context.Context, seq uint64, req channel.OpenRequest) {
	stream, err := o.deps.Audio.Start()
	if err != nil {
		o.startResults <- startResult{seq: seq, err: err}
		return
	}
	handle, err := o.deps.Channel.Open(ctx, req)
	if err != nil {
		if stopErr := stream.Stop(); stopErr != nil {
			o.logger.Warn("release audio after failed start", "error", stopErr)
		}
		o.startResults <- startResult{seq: seq, err: err}
		return
	}
	o.startResults <- startResult{seq: seq, stream: stream, handle: handle}
}

func (o *Orchestrator) handleStartResult(ctx context.Context, res startResult) {
	s := o.sess
	if s == nil || s.seq != res.seq {
		// Stale result: release whatever it acquired.
		if res.handle != nil {
			_ = res.handle.Close()
		}
		if res.stream != nil {
			_ = res.stream.Stop()
		}
		return
	}

	if res.err != nil {
		o.sess = nil
		o.setState(StateIdle)
		o.metrics.RecordSessionEnd("start_failed", 0)
		o.logger.Warn("session start failed", "session", s.seq, "error", res.err)
		o.emitError(res.err)
		s.startReply <- commandResult{err: res.err}
		for _, w := range s.stopWaiters {
			w <- commandResult{}
		}
		return
	}

	s.stream = res.stream
	s.handle = res.handle
	s.events = res.handle.Events()
	s.startedAt = o.now()
	s.interp = NewInterpreter(o.model, s.tools, o.speakFunc(s.settings), o.logger, o.metrics)
	s.pumpDone = make(chan struct{})
	go o.pump(s.stream, s.handle, s.pumpDone)

	o.timer.Start(o.cfg.SessionDuration)
	o.setState(StateRunning)
	o.logger.Info("session running", "session", s.seq, "duration", o.cfg.SessionDuration)
	s.startReply <- commandResult{}
	o.emit(&TimerTickEvent{RemainingSeconds: o.timer.Remaining()})

	if s.stopRequested {
		o.stopSession(ctx, s.stopReason, nil)
	}
}

// pump forwards captured frames to the channel until the stream closes.
func (o *Orchestrator) pump(stream *audio.Stream, handle *channel.Handle, done chan struct{}) {
	defer close(done)
	var lastLevel time.Time
	for frame := range stream.Frames() {
		handle.Send(frame)

		now := o.now()
		if now.Sub(lastLevel) < o.cfg.LevelInterval {
			continue
		}
		lastLevel = now
		lvl := audio.MeasureLevel(frame)
		o.metrics.SetAudioLevel(lvl.RMS)
		select {
		case o.levels <- lvl:
		default:
		}
	}
}

func (o *Orchestrator) handleChannelEvent(ctx context.Context, ev channel.Event) {
	if o.State() != StateRunning {
		return
	}
	out := o.sess.interp.Handle(ev)
	if out.TranscriptChanged {
		o.emit(&TranscriptUpdatedEvent{Transcript: o.model.Transcript()})
	}
	if out.NotesChanged {
		o.emitNotes()
	}
	if !out.Terminal {
		return
	}
	if out.Err != nil {
		var ce *core.Error
		cause := out.Err
		if !errors.As(cause, &ce) {
			cause = core.NewChannelError("live channel failed", out.Err)
		}
		o.stopSession(ctx, ReasonError, cause)
		return
	}
	o.stopSession(ctx, ReasonClosed, nil)
}

func (o *Orchestrator) handleTick(ctx context.Context) {
	if o.State() != StateRunning {
		return
	}
	if o.timer.Check() {
		o.logger.Info("session time limit reached", "session", o.sess.seq)
		o.stopSession(ctx, ReasonTimeout, nil)
		return
	}
	o.emit(&TimerTickEvent{RemainingSeconds: o.timer.Remaining()})
}

// stopSession tears down timer, channel and audio in that order, then hands
// the model snapshot to the finalizer. Teardown errors are logged, never
// returned: every step runs regardless of earlier failures.
func (o *Orchestrator) stopSession(ctx context.Context, reason string, cause error) {
	s := o.sess
	o.setState(StateStopping)

	o.timer.Cancel()
	var errs []error
	if err := s.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop audio: %w", err))
	}
	<-s.pumpDone
	if o.deps.Speaker != nil {
		o.deps.Speaker.Cancel()
	}
	s.events = nil
	if err := errors.Join(errs...); err != nil {
		o.logger.Warn("session teardown incomplete", "session", s.seq, "error", err)
	}

	elapsed := o.now().Sub(s.startedAt)
	o.metrics.RecordSessionEnd(reason, elapsed)
	o.logger.Info("session stopped", "session", s.seq, "reason", reason, "elapsed", elapsed)
	if cause != nil {
		o.logger.Warn("session ended with error", "session", s.seq, "error", cause)
		o.emitError(cause)
	}

	snap := o.model.Snapshot()
	o.setState(StateFinalizing)
	for _, w := range s.stopWaiters {
		w <- commandResult{}
	}
	s.stopWaiters = nil

	go o.finalize(context.WithoutCancel(ctx), snap, reason)
}

// finalize always posts exactly one record, even when the finalizer or the
// history store panics.
func (o *Orchestrator) finalize(ctx context.Context, snap notes.Snapshot, reason string) {
	rec := o.buildRecord(ctx, snap)
	o.persist(ctx, rec)
	o.finalized <- finalizeResult{record: rec, reason: reason}
}

func (o *Orchestrator) buildRecord(ctx context.Context, snap notes.Snapshot) (rec types.SessionRecord) {
	defer func() {
		if v := recover(); v != nil {
			rec = finalize.Degraded(uuid.NewString(), o.now(), snap.Transcript, snap.Notes())
			o.logger.Error("finalizer panicked, saving degraded record", "id", rec.ID, "panic", v)
		}
	}()
	return o.deps.Finalizer.Finalize(ctx, snap.Transcript, snap.Notes())
}

func (o *Orchestrator) persist(ctx context.Context, rec types.SessionRecord) {
	if o.deps.History == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			o.logger.Error("persist session record", "id", rec.ID, "panic", v)
		}
	}()
	if err := o.deps.History.Prepend(ctx, rec); err != nil {
		o.logger.Error("persist session record", "id", rec.ID, "error", err)
	}
}

func (o *Orchestrator) handleFinalized(res finalizeResult) {
	o.model.Reset()
	o.sess = nil
	o.setState(StateIdle)
	o.logger.Info("session finalized", "id", res.record.ID, "title", res.record.Title, "notes", len(res.record.Notes))
	o.emit(&SessionFinalizedEvent{Record: res.record, Reason: res.reason})
}

func (o *Orchestrator) speakFunc(s config.Settings) func(string) {
	if o.deps.Speaker == nil || !s.VoiceResponse {
		return nil
	}
	opts := voice.Options{VoiceID: s.VoiceID, Rate: s.Rate}
	return func(text string) {
		o.deps.Speaker.Speak(text, opts)
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	snap := o.model.Snapshot()
	out := Snapshot{
		State:      o.State(),
		Finalizing: o.State() == StateFinalizing,
		Transcript: snap.Transcript,
		Archived:   snap.Archived,
		Active:     snap.Active,
	}
	if out.State == StateRunning {
		out.RemainingSeconds = o.timer.Remaining()
	}
	return out
}

func (o *Orchestrator) setState(to State) {
	from := o.State()
	if from == to {
		return
	}
	if !canTransition(from, to) {
		o.logger.Error("unexpected state transition", "from", from, "to", to)
	}
	o.state.Store(int32(to))
	o.metrics.SetSessionState(int(to))
	o.logger.Debug("state changed", "from", from, "to", to)
	o.emit(&StateChangedEvent{From: from, To: to})
}

func (o *Orchestrator) emitNotes() {
	snap := o.model.Snapshot()
	o.emit(&NotesUpdatedEvent{Archived: snap.Archived, Active: snap.Active})
}

// emitError publishes err as session.error when it is meant for the person
// recording. Other failures are only logged.
func (o *Orchestrator) emitError(err error) {
	var ce *core.Error
	if !errors.As(err, &ce) {
		ce = core.NewAPIError(err.Error())
	}
	if !ce.UserVisible() {
		o.logger.Debug("error not surfaced", "type", ce.Type, "error", err)
		return
	}
	o.emit(&SessionErrorEvent{Type: string(ce.Type), Message: ce.Message})
}

func (o *Orchestrator) emit(ev Event) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.logger.Debug("observer behind, dropping event", "type", ev.EventType())
		}
	}
}

func (o *Orchestrator) closeSubscribers() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
