package clock

import (
	"context"
	"sync"
	"time"
)

// VirtualClock is a test-only Clock that never advances on its own. The test
// harness calls Advance(d) to move time forward explicitly; every ticker and
// After-channel registered against the clock fires deterministically at that
// point, never before. Waiters observe cancellation (Stop / ctx.Done) before
// the next tick fires.
type VirtualClock struct {
	mu sync.Mutex
	now time.Time
	tickers []*virtualTicker
	afters []*virtualAfter
}

// NewVirtual creates a VirtualClock starting at the given instant.
func NewVirtual(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (vc *VirtualClock) Now() time.Time {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.now
}

// Advance moves the virtual clock forward by d, firing any ticker or After
// waiter whose next deadline falls at or before the new time, in deadline
// order. A ticker may fire more than once per call if d spans multiple
// intervals.
func (vc *VirtualClock) Advance(d time.Duration) {
	vc.mu.Lock()
	target := vc.now.Add(d)
	vc.now = target
	// Deliver all ticker fires in strict chronological order so loops that
	// read from multiple tickers observe a globally consistent sequence.
	for {
 var nextTicker *virtualTicker
 for _, t := range vc.tickers {
 if t.stopped {
 continue
 }
 if !t.next.After(target) {
 if nextTicker == nil || t.next.Before(nextTicker.next) {
 nextTicker = t
 }
 }
 }
 if nextTicker == nil {
 break
 }
 fireAt := nextTicker.next
 nextTicker.next = nextTicker.next.Add(nextTicker.interval)
 vc.mu.Unlock()
 select {
 case nextTicker.c <- fireAt:
 default:
 }
 vc.mu.Lock()
	}
	remaining := make([]*virtualAfter, 0, len(vc.afters))
	due := make([]*virtualAfter, 0)
	for _, a := range vc.afters {
 if !a.cancelled && !a.deadline.After(target) {
 due = append(due, a)
 } else if !a.cancelled {
 remaining = append(remaining, a)
 }
	}
	vc.afters = remaining
	vc.mu.Unlock()
	for _, a := range due {
 select {
 case a.c <- a.deadline:
 default:
 }
	}
}

func (vc *VirtualClock) NewTicker(interval, _ time.Duration) Ticker {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	t := &virtualTicker{
 c: make(chan time.Time, 1),
 interval: interval,
 next: vc.now.Add(interval),
 owner: vc,
	}
	vc.tickers = append(vc.tickers, t)
	return t
}

func (vc *VirtualClock) After(ctx context.Context, d time.Duration) <-chan time.Time {
	vc.mu.Lock()
	a := &virtualAfter{
 c: make(chan time.Time, 1),
 deadline: vc.now.Add(d),
	}
	vc.afters = append(vc.afters, a)
	vc.mu.Unlock()

	if ctx != nil {
 go func() {
 select {
 case <-ctx.Done():
 vc.mu.Lock()
 a.cancelled = true
 vc.mu.Unlock()
 case <-a.c:
 }
 }()
	}
	return a.c
}

type virtualTicker struct {
	c chan time.Time
	interval time.Duration
	next time.Time
	stopped bool
	owner *VirtualClock
}

func (t *virtualTicker) C() <-chan time.Time { return t.c }

func (t *virtualTicker) Stop() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.stopped = true
}

type virtualAfter struct {
	c chan time.Time
	deadline time.Time
	cancelled bool
}
