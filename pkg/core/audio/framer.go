package audio

// Framer converts float samples at an arbitrary source rate into Frames.
// It is not safe for concurrent use.
type Framer struct {
	frameSize int
	pending   []int16

	step   float64
	pos    float64
	last   float32
	primed bool
}

// NewFramer creates a framer reading samples at srcRate. A srcRate <= 0 is
// treated as SampleRate. frameSize <= 0 uses FrameSamples.
func NewFramer(srcRate, frameSize int) *Framer {
	if srcRate <= 0 {
		srcRate = SampleRate
	}
	if frameSize <= 0 {
		frameSize = FrameSamples
	}
	return &Framer{
		frameSize: frameSize,
		pending:   make([]int16, 0, frameSize),
		step:      float64(srcRate) / SampleRate,
	}
}

// Push feeds samples and returns every frame completed by them.
func (f *Framer) Push(samples []float32) []Frame {
	var frames []Frame
	emit := func(v float32) {
		f.pending = append(f.pending, FloatToPCM16(v))
		if len(f.pending) == f.frameSize {
			frames = append(frames, Frame(f.pending))
			f.pending = make([]int16, 0, f.frameSize)
		}
	}

	if f.step == 1 {
		for _, v := range samples {
			emit(v)
		}
		return frames
	}

	buf := samples
	if f.primed {
		buf = make([]float32, 0, len(samples)+1)
		buf = append(buf, f.last)
		buf = append(buf, samples...)
	}
	if len(buf) == 0 {
		return nil
	}
	// Linear interpolation between buf[i] and buf[i+1].
	for f.pos+1 < float64(len(buf)) {
		i := int(f.pos)
		frac := float32(f.pos - float64(i))
		emit(buf[i]*(1-frac) + buf[i+1]*frac)
		f.pos += f.step
	}
	f.pos -= float64(len(buf) - 1)
	f.last = buf[len(buf)-1]
	f.primed = true
	return frames
}

// Pending returns the number of samples waiting for a full frame.
func (f *Framer) Pending() int {
	return len(f.pending)
}
