package timers

import (
	"sync"
	"time"
)

// Purpose identifies a class of delayed action. At most one timer per
// purpose is armed at a time.
type Purpose string

const (
	PurposeAutoStop        Purpose = "auto_stop"
	PurposeConfirmTimeout  Purpose = "confirmation_timeout"
	PurposeRestartAfterTTS Purpose = "restart_after_tts"
)

type entry struct {
	timer *time.Timer
	fn    func()
}

// Coordinator owns all cancellable delayed actions for one session.
// Scheduling under a purpose cancels any previously armed timer of the same
// purpose, so rearming never stacks. Cancellation is synchronous: once
// Cancel returns, the callback will not run.
type Coordinator struct {
	mu      sync.Mutex
	entries map[Purpose]*entry
}

func New() *Coordinator {
	return &Coordinator{entries: make(map[Purpose]*entry)}
}

// Schedule arms fn to run after d, replacing any existing timer under p.
// Callbacks should still re-validate the condition they were scheduled for;
// state may have changed between scheduling and firing.
func (c *Coordinator) Schedule(p Purpose, d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[p]; ok {
		old.timer.Stop()
		delete(c.entries, p)
	}
	e := &entry{fn: fn}
	e.timer = time.AfterFunc(d, func() { c.fire(p, e) })
	c.entries[p] = e
}

// fire runs the callback only if e is still the current timer for p.
// A timer replaced or cancelled after its goroutine was already woken is a
// no-op here.
func (c *Coordinator) fire(p Purpose, e *entry) {
	c.mu.Lock()
	cur, ok := c.entries[p]
	if !ok || cur != e {
		c.mu.Unlock()
		return
	}
	delete(c.entries, p)
	c.mu.Unlock()
	e.fn()
}

// Cancel disarms the timer under p, if any. Safe to call in any state.
func (c *Coordinator) Cancel(p Purpose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[p]; ok {
		e.timer.Stop()
		delete(c.entries, p)
	}
}

// CancelAll disarms every outstanding timer.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, e := range c.entries {
		e.timer.Stop()
		delete(c.entries, p)
	}
}

// Armed reports whether a timer is outstanding under p.
func (c *Coordinator) Armed(p Purpose) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[p]
	return ok
}
