package live

import (
	"math"
	"time"
)

// TimerState is the countdown state of a session timer.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerRunning
	TimerExpired
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "IDLE"
	case TimerRunning:
		return "RUNNING"
	case TimerExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Timer is a one-shot session countdown. It does not own a goroutine: the
// session loop calls Check on every tick. Not safe for concurrent use.
type Timer struct {
	now      func() time.Time
	state    TimerState
	started  time.Time
	duration time.Duration
}

func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Start begins a countdown of d from Idle or Expired. Starting a running
// timer restarts it.
func (t *Timer) Start(d time.Duration) {
	t.state = TimerRunning
	t.started = t.now()
	t.duration = d
}

// Cancel returns the timer to Idle from any state.
func (t *Timer) Cancel() {
	t.state = TimerIdle
}

func (t *Timer) State() TimerState { return t.state }

// Elapsed is clamped to [0, duration].
func (t *Timer) Elapsed() time.Duration {
	if t.state == TimerIdle {
		return 0
	}
	if t.state == TimerExpired {
		return t.duration
	}
	e := t.now().Sub(t.started)
	if e < 0 {
		return 0
	}
	if e > t.duration {
		return t.duration
	}
	return e
}

// Remaining returns whole seconds left, rounded up.
func (t *Timer) Remaining() int {
	if t.state != TimerRunning {
		return 0
	}
	left := t.duration - t.Elapsed()
	return int(math.Ceil(left.Seconds()))
}

// Check reports true exactly once, on the first call that observes the
// deadline, and moves the timer to Expired.
func (t *Timer) Check() bool {
	if t.state != TimerRunning {
		return false
	}
	if t.now().Sub(t.started) < t.duration {
		return false
	}
	t.state = TimerExpired
	return true
}
