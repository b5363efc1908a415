// Package clock provides the uniform source of monotonic time used by every
// RPCP loop. No component may read wall time directly; every loop driver
// depends on the Clock interface so tests can substitute VirtualClock and
// drive ticks deterministically with Advance.
package clock

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Clock is the uniform time source every loop driver depends on.
type Clock interface {
	Now() time.Time
	// NewTicker returns a ticker that fires every interval, jittered by up to
	// +/- jitter (jitter == 0 disables jitter). Callers must call Stop.
	NewTicker(interval, jitter time.Duration) Ticker
	// After returns a channel that fires once after d, cancellable via ctx.
	After(ctx context.Context, d time.Duration) <-chan time.Time
}

// Ticker is a cancellable, periodic timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// ---- real clock -------------------------------------------------------

type realClock struct{}

// New returns the production Clock backed by the OS monotonic clock.
func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(interval, jitter time.Duration) Ticker {
	return newRealTicker(interval, jitter)
}

func (realClock) After(ctx context.Context, d time.Duration) <-chan time.Time {
	out := make(chan time.Time, 1)
	t := time.NewTimer(d)
	go func() {
 select {
 case fired := <-t.C:
 out <- fired
 case <-ctx.Done():
 t.Stop()
 }
	}()
	return out
}

type realTicker struct {
	c chan time.Time
	stop chan struct{}
	once sync.Once
}

func newRealTicker(interval, jitter time.Duration) *realTicker {
	rt := &realTicker{
 c: make(chan time.Time, 1),
 stop: make(chan struct{}),
	}
	go rt.loop(interval, jitter)
	return rt
}

// loop fires on interval +/- a uniformly distributed jitter, to avoid a
// thundering herd across independently scheduled loops.
func (rt *realTicker) loop(interval, jitter time.Duration) {
	for {
 wait := interval
 if jitter > 0 {
 delta := time.Duration(rand.Int63n(int64(2*jitter))) - jitter
 wait += delta
 if wait < 0 {
 wait = 0
 }
 }
 timer := time.NewTimer(wait)
 select {
 case <-rt.stop:
 timer.Stop()
 return
 case now := <-timer.C:
 select {
 case rt.c <- now:
 default:
 }
 }
	}
}

func (rt *realTicker) C() <-chan time.Time { return rt.c }

func (rt *realTicker) Stop() {
	rt.once.Do(func() { close(rt.stop) })
}
