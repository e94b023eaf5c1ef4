package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-go/livenotes/pkg/core"
)

// DeviceConfig describes the capture format requested from a device.
type DeviceConfig struct {
	SampleRate int
	Channels   int
}

// Device is a started or startable input device.
type Device interface {
	Start() error
	// Stop halts the callback and releases the device.
	Stop() error
}

// DeviceOpener opens a capture device that delivers mono float samples to onData.
type DeviceOpener interface {
	Open(cfg DeviceConfig, onData func(samples []float32)) (Device, error)
}

// Source starts capture streams.
type Source interface {
	Start() (*Stream, error)
}

// Capture is the default Source: a device opener plus a framer per stream.
type Capture struct {
	Opener DeviceOpener
	// DeviceRate is the rate requested from the device. Frames are resampled
	// to SampleRate when it differs.
	DeviceRate int
	FrameSize  int
	// Buffer bounds the number of undelivered frames per stream.
	Buffer int
	Logger *slog.Logger
}

// Start opens the device and begins capture. Any device or permission failure
// is returned as a device_unavailable error.
func (c *Capture) Start() (*Stream, error) {
	if c == nil || c.Opener == nil {
		return nil, core.NewDeviceUnavailableError("no capture device configured", nil)
	}
	rate := c.DeviceRate
	if rate <= 0 {
		rate = SampleRate
	}
	buffer := c.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stream{
		frames: make(chan Frame, buffer),
		framer: NewFramer(rate, c.FrameSize),
		logger: logger,
	}
	dev, err := c.Opener.Open(DeviceConfig{SampleRate: rate, Channels: 1}, s.onData)
	if err != nil {
		return nil, core.NewDeviceUnavailableError("open capture device", err)
	}
	s.device = dev
	if err := dev.Start(); err != nil {
		_ = dev.Stop()
		return nil, core.NewDeviceUnavailableError("start capture device", err)
	}
	logger.Debug("audio capture started", "device_rate", rate)
	return s, nil
}

// Stream is one capture run. It cannot be restarted once stopped.
type Stream struct {
	device Device
	framer *Framer
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	frames  chan Frame

	delivered atomic.Int64
	dropped   atomic.Int64
	stopOnce  sync.Once
	stopErr   error
}

// Frames yields captured frames until Stop. The channel is closed by Stop.
func (s *Stream) Frames() <-chan Frame {
	return s.frames
}

func (s *Stream) onData(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, f := range s.framer.Push(samples) {
		select {
		case s.frames <- f:
			s.delivered.Add(1)
		default:
			// never block the device callback
			s.dropped.Add(1)
		}
	}
}

// Stop releases the device. It is idempotent; no frame is delivered after it returns.
func (s *Stream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.frames)
		s.mu.Unlock()

		if s.device != nil {
			s.stopErr = s.device.Stop()
		}
		s.logger.Debug("audio capture stopped",
			"frames", s.delivered.Load(),
			"dropped", s.dropped.Load(),
		)
	})
	return s.stopErr
}

// Dropped returns the number of frames discarded because the consumer fell behind.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}
