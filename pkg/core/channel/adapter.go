package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/audio"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/metrics"
)

// OpenRequest describes one streaming session.
type OpenRequest struct {
	Tools        []types.Tool
	SystemPrompt string
}

// Transport is a connected duplex stream to the remote service.
// SendAudio is only called from one goroutine, as is Recv.
type Transport interface {
	SendAudio(ctx context.Context, frame audio.Frame) error
	// Recv blocks for the next inbound event. It returns ErrClosed when the
	// peer ended the stream normally.
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// Dialer connects transports.
type Dialer interface {
	Dial(ctx context.Context, req OpenRequest) (Transport, error)
}

// Config tunes an Adapter.
type Config struct {
	// QueueSize bounds outbound frames waiting to be written.
	QueueSize int
	// FlushTimeout bounds how long Close keeps writing queued frames.
	FlushTimeout time.Duration
	// EventBuffer is the capacity of the inbound event channel.
	EventBuffer int
}

// Adapter hands out at most one open Handle at a time.
type Adapter struct {
	dialer  Dialer
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	handle *Handle
}

func NewAdapter(dialer Dialer, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Adapter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 500 * time.Millisecond
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{dialer: dialer, cfg: cfg, logger: logger, metrics: m}
}

// Open dials the remote service. A second Open while a handle is still open
// fails with channel_already_open; failures to connect are channel errors.
func (a *Adapter) Open(ctx context.Context, req OpenRequest) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle != nil && !a.handle.isClosed() {
		return nil, core.NewChannelAlreadyOpenError()
	}
	if a.dialer == nil {
		return nil, core.NewChannelError("no dialer configured", nil)
	}

	t, err := a.dialer.Dial(ctx, req)
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, core.NewChannelError(fmt.Sprintf("dial: %v", err), err)
	}

	h := newHandle(t, a.cfg, a.logger, a.metrics)
	a.handle = h
	go h.readLoop()
	go h.writeLoop()
	return h, nil
}

// Close closes the current handle, if any. It is safe to call when nothing
// was ever opened.
func (a *Adapter) Close() error {
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Close()
}

// Handle is one open channel.
type Handle struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	out    chan audio.Frame
	events chan Event

	quit       chan struct{}
	done       chan struct{}
	writerDone chan struct{}
	readDone   chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	failOnce sync.Once
	failErr  atomic.Value // error

	transportOnce sync.Once
	transportErr  error

	dropped atomic.Int64
}

func newHandle(t Transport, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		transport:  t,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		out:        make(chan audio.Frame, cfg.QueueSize),
		events:     make(chan Event, cfg.EventBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		readDone:   make(chan struct{}),
	}
}

// Events yields inbound events in arrival order. At most one terminal event
// (ChannelError or ChannelClosed) is delivered, after which the channel is closed.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Send enqueues a frame without blocking. It reports false when the frame was
// dropped because the queue is full or the handle is closing.
func (h *Handle) Send(frame audio.Frame) bool {
	if h.closing.Load() {
		return false
	}
	select {
	case h.out <- frame:
		h.metrics.RecordAudioFrame("sent")
		return true
	default:
		n := h.dropped.Add(1)
		h.metrics.RecordAudioFrame("dropped")
		if n == 1 || n%50 == 0 {
			h.logger.Warn("outbound audio queue full, dropping frame", "dropped", n)
		}
		return false
	}
}

// Dropped returns the number of frames dropped by Send.
func (h *Handle) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Handle) isClosed() bool {
	return h.closing.Load()
}

func (h *Handle) writeLoop() {
	defer close(h.writerDone)
	for {
		select {
		case <-h.quit:
			h.flush()
			return
		case frame := <-h.out:
			if err := h.transport.SendAudio(h.ctx, frame); err != nil {
				h.fail(err)
				return
			}
		}
	}
}

func (h *Handle) flush() {
	deadline := time.Now().Add(h.cfg.FlushTimeout)
	for time.Now().Before(deadline) {
		select {
		case frame := <-h.out:
			if err := h.transport.SendAudio(h.ctx, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// fail records a write-side failure and tears down the transport so the read
// loop reports it as the terminal event.
func (h *Handle) fail(err error) {
	h.failOnce.Do(func() {
		h.failErr.Store(err)
		_ = h.closeTransport()
	})
}

func (h *Handle) closeTransport() error {
	h.transportOnce.Do(func() {
		h.transportErr = h.transport.Close()
	})
	return h.transportErr
}

func (h *Handle) readLoop() {
	defer close(h.readDone)
	defer close(h.events)
	for {
		ev, err := h.transport.Recv(h.ctx)
		if err != nil {
			h.emit(h.terminalFor(err))
			return
		}
		if ev == nil {
			continue
		}
		if IsTerminal(ev) {
			h.emit(ev)
			return
		}
		if !h.emit(ev) {
			return
		}
	}
}

func (h *Handle) terminalFor(err error) Event {
	if v := h.failErr.Load(); v != nil {
		return ChannelError{Err: core.NewChannelError("write failed", v.(error))}
	}
	if h.closing.Load() || errors.Is(err, ErrClosed) {
		return ChannelClosed{Reason: "closed"}
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return ChannelError{Err: err}
	}
	return ChannelError{Err: core.NewChannelError(err.Error(), err)}
}

func (h *Handle) emit(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Close flushes queued frames for up to FlushTimeout, then closes the
// transport. It is idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closing.Store(true)
		close(h.quit)

		wait := h.cfg.FlushTimeout + time.Second
		select {
		case <-h.writerDone:
		case <-time.After(wait):
			h.logger.Warn("channel writer did not stop in time")
		}

		h.cancel()
		if err := h.closeTransport(); err != nil && h.failErr.Load() == nil {
			h.closeErr = err
		}
		close(h.done)

		select {
		case <-h.readDone:
		case <-time.After(wait):
			h.logger.Warn("channel reader did not stop in time")
		}
	})
	return h.closeErr
}
