package live

import (
	"testing"
	"time"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTimer_FiresExactlyOnceAfterDuration(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	timer := NewTimer(clock.now)
	timer.Start(600 * time.Second)

	fired := 0
	firedAt := 0
	for tick := 1; tick <= 700; tick++ {
		clock.advance(time.Second)
		if timer.Check() {
			fired++
			firedAt = tick
		}
	}
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
	if firedAt != 600 {
		t.Fatalf("fired at tick %d, want 600", firedAt)
	}
	if timer.State() != TimerExpired {
		t.Fatalf("state=%v, want EXPIRED", timer.State())
	}
	if timer.Elapsed() != 600*time.Second {
		t.Fatalf("elapsed=%v", timer.Elapsed())
	}
}

func TestTimer_RemainingRoundsUp(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	timer := NewTimer(clock.now)
	if timer.Remaining() != 0 {
		t.Fatalf("idle remaining=%d", timer.Remaining())
	}

	timer.Start(10 * time.Second)
	if got := timer.Remaining(); got != 10 {
		t.Fatalf("remaining=%d, want 10", got)
	}
	clock.advance(1500 * time.Millisecond)
	if got := timer.Remaining(); got != 9 {
		t.Fatalf("remaining=%d, want 9", got)
	}
	clock.advance(8400 * time.Millisecond)
	if got := timer.Remaining(); got != 1 {
		t.Fatalf("remaining=%d, want 1", got)
	}
}

func TestTimer_CancelReturnsToIdle(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	timer := NewTimer(clock.now)
	timer.Start(5 * time.Second)
	clock.advance(2 * time.Second)
	timer.Cancel()

	if timer.State() != TimerIdle {
		t.Fatalf("state=%v", timer.State())
	}
	clock.advance(10 * time.Second)
	if timer.Check() {
		t.Fatalf("cancelled timer fired")
	}
	if timer.Elapsed() != 0 {
		t.Fatalf("elapsed=%v", timer.Elapsed())
	}

	timer.Start(time.Second)
	clock.advance(time.Second)
	if !timer.Check() {
		t.Fatalf("restarted timer did not fire")
	}
}

func TestTimer_ElapsedClampsBackwardClock(t *testing.T) {
	clock := &manualClock{t: time.Unix(100, 0)}
	timer := NewTimer(clock.now)
	timer.Start(time.Minute)
	clock.advance(-time.Second)
	if timer.Elapsed() != 0 {
		t.Fatalf("elapsed=%v, want 0", timer.Elapsed())
	}
}
