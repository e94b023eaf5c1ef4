package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoOpener opens capture devices through miniaudio.
type MalgoOpener struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoOpener initializes the miniaudio context. Call Close when done.
func NewMalgoOpener() (*MalgoOpener, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoOpener{ctx: ctx}, nil
}

func (o *MalgoOpener) Open(cfg DeviceConfig, onData func(samples []float32)) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil, fmt.Errorf("audio context closed")
	}

	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			samples := DecodeF32LE(pInputSamples)
			if channels > 1 {
				samples = downmix(samples, channels)
			}
			onData(samples)
		},
	}

	device, err := malgo.InitDevice(o.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	return &malgoDevice{device: device}, nil
}

// Close releases the miniaudio context.
func (o *MalgoOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return nil
	}
	err := o.ctx.Uninit()
	o.ctx.Free()
	o.ctx = nil
	return err
}

type malgoDevice struct {
	device *malgo.Device
	once   sync.Once
	err    error
}

func (d *malgoDevice) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}
	return nil
}

func (d *malgoDevice) Stop() error {
	d.once.Do(func() {
		if d.device.IsStarted() {
			d.err = d.device.Stop()
		}
		d.device.Uninit()
	})
	return d.err
}

func downmix(interleaved []float32, channels int) []float32 {
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
