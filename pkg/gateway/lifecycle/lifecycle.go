package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
)

// Lifecycle is shared across handlers during graceful shutdown. Once draining,
// new live connections are refused and Wait blocks until the open ones close.
type Lifecycle struct {
	draining atomic.Bool
	open     atomic.Int64
	wg       sync.WaitGroup
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Track registers an open live connection. The returned func must be called
// exactly once when it closes.
func (l *Lifecycle) Track() func() {
	if l == nil {
		return func() {}
	}
	l.wg.Add(1)
	l.open.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.open.Add(-1)
			l.wg.Done()
		})
	}
}

// OpenConns returns the number of tracked connections.
func (l *Lifecycle) OpenConns() int {
	if l == nil {
		return 0
	}
	return int(l.open.Load())
}

// Wait blocks until every tracked connection has closed or ctx is done.
func (l *Lifecycle) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
