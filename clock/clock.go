// Package clock abstracts the time operations growler waits on, so that
// backoff, idle keepalives and cache expiry can be driven
// deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package used by the supervisor and the
// watched-set cache.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
	// NewTimer returns a Timer that delivers on its C channel once d has
	// elapsed. Equivalent to time.NewTimer.
	NewTimer(d time.Duration) *Timer
}

// Timer is a single scheduled event that can be stopped or rearmed.
type Timer struct {
	// C delivers the fire time. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the Timer from firing. It returns false if the timer had
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset rearms the timer to fire d after now, discarding any fire time
// not yet received from C. It returns true if the timer was active.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTimer relies on the Go 1.23 timer semantics: Stop and Reset leave no
// stale value in C.
func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stopFunc: t.Stop, resetFunc: t.Reset}
}

// Fake returns a FakeClock frozen at initial. Time moves only when Advance
// is called. FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
	changed *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a waiter that fires when the clock is advanced past d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.add(&fakeWaiter{deadline: c.current.Add(d), channel: ch})
	return ch
}

// NewTimer registers a waiter that stays pending until it fires or is
// stopped. A stopped timer no longer counts toward Waiters.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	ch := make(chan time.Time, 1)
	w := &fakeWaiter{channel: ch}
	c.arm(w, d)

	return &Timer{
		C: ch,
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.remove(w)
		},
		resetFunc: func(d time.Duration) bool {
			c.mu.Lock()
			active := c.remove(w)
			select {
			case <-ch:
			default:
			}
			c.mu.Unlock()
			c.arm(w, d)
			return active
		},
	}
}

func (c *FakeClock) arm(w *fakeWaiter, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.deadline = c.current.Add(d)
	if d <= 0 {
		select {
		case w.channel <- c.current:
		default:
		}
		return
	}
	c.add(w)
}

// add and remove are called with mu held.
func (c *FakeClock) add(w *fakeWaiter) {
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()
}

func (c *FakeClock) remove(w *fakeWaiter) bool {
	for i, pending := range c.waiters {
		if pending == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.changed.Broadcast()
			return true
		}
	}
	return false
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline has been reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if w.deadline.After(c.current) {
			pending = append(pending, w)
			continue
		}
		select {
		case w.channel <- c.current:
		default:
		}
	}
	c.waiters = pending
	c.changed.Broadcast()
}

// Waiters returns the number of pending After calls and active timers.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntil blocks until at least n waiters are pending.
func (c *FakeClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.changed.Wait()
	}
}
