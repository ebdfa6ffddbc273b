package timers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRearmCancelsPrevious(t *testing.T) {
	c := New()
	var fired int32

	c.Schedule(PurposeAutoStop, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	c.Schedule(PurposeAutoStop, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("expected exactly one firing after rearm, got %d", got)
	}
}

func TestCancelPreventsFire(t *testing.T) {
	c := New()
	var fired int32

	c.Schedule(PurposeConfirmTimeout, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	c.Cancel(PurposeConfirmTimeout)

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("cancelled timer fired")
	}
	if c.Armed(PurposeConfirmTimeout) {
		t.Fatalf("timer still armed after cancel")
	}
}

func TestCancelIdempotent(t *testing.T) {
	c := New()
	c.Cancel(PurposeAutoStop)
	c.Cancel(PurposeAutoStop)
	c.CancelAll()
}

func TestDifferentPurposesCoexist(t *testing.T) {
	c := New()
	var auto, confirm int32

	c.Schedule(PurposeAutoStop, 15*time.Millisecond, func() { atomic.AddInt32(&auto, 1) })
	c.Schedule(PurposeConfirmTimeout, 15*time.Millisecond, func() { atomic.AddInt32(&confirm, 1) })

	time.Sleep(70 * time.Millisecond)
	if atomic.LoadInt32(&auto) != 1 || atomic.LoadInt32(&confirm) != 1 {
		t.Fatalf("expected both purposes to fire once, got auto=%d confirm=%d", auto, confirm)
	}
}

func TestCancelAll(t *testing.T) {
	c := New()
	var fired int32

	c.Schedule(PurposeAutoStop, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	c.Schedule(PurposeConfirmTimeout, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	c.Schedule(PurposeRestartAfterTTS, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	c.CancelAll()

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("timers fired after CancelAll")
	}
}
