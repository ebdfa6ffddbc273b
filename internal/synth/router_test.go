package synth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	id    string
	err   error
	calls int32
	block chan struct{} // if set, Speak blocks until ctx is done or closed
}

func (f *fakeBackend) ID() string { return f.id }

func (f *fakeBackend) Speak(ctx context.Context, text string, opts Options) error {
	n := atomic.AddInt32(&f.calls, 1)
	if f.block != nil && n == 1 {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type fakePauser struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

func (f *fakePauser) PauseForSynthesis(ctx context.Context) {
	f.mu.Lock()
	f.pauses++
	f.mu.Unlock()
}

func (f *fakePauser) ResumeAfterSynthesis(ctx context.Context) {
	f.mu.Lock()
	f.resumes++
	f.mu.Unlock()
}

func (f *fakePauser) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses, f.resumes
}

func TestSpeakFirstBackendSucceeds(t *testing.T) {
	b1 := &fakeBackend{id: "native-platform"}
	b2 := &fakeBackend{id: "in-browser"}
	p := &fakePauser{}
	r := NewRouter([]Backend{b1, b2}, p, nil, Options{})

	out := r.Speak(context.Background(), "done")
	if out.Kind != OutcomeSpoken || out.BackendID != "native-platform" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if atomic.LoadInt32(&b2.calls) != 0 {
		t.Fatalf("second backend should not be tried")
	}
}

func TestSpeakFallsThroughToSecondBackend(t *testing.T) {
	b1 := &fakeBackend{id: "native-platform", err: errors.New("engine gone")}
	b2 := &fakeBackend{id: "in-browser"}
	p := &fakePauser{}
	r := NewRouter([]Backend{b1, b2}, p, nil, Options{})

	out := r.Speak(context.Background(), "done")
	if out.Kind != OutcomeSpoken || out.BackendID != "in-browser" {
		t.Fatalf("expected fallback to second backend, got %+v", out)
	}
	// Recognition pauses once across the whole attempt sequence.
	if pauses, resumes := p.counts(); pauses != 1 || resumes != 1 {
		t.Fatalf("expected 1 pause/1 resume, got %d/%d", pauses, resumes)
	}
}

func TestSpeakAllBackendsFailResolvesTextOnly(t *testing.T) {
	b1 := &fakeBackend{id: "native-platform", err: errors.New("a")}
	b2 := &fakeBackend{id: "in-browser", err: errors.New("b")}
	var shown []string
	r := NewRouter([]Backend{b1, b2}, &fakePauser{}, func(text string) { shown = append(shown, text) }, Options{})

	out := r.Speak(context.Background(), "all lights off")
	if out.Kind != OutcomeTextOnly {
		t.Fatalf("expected text-only outcome, got %+v", out)
	}
	if len(shown) != 1 || shown[0] != "all lights off" {
		t.Fatalf("expected visual fallback with the text, got %v", shown)
	}
}

func TestSpeakNoBackendsResolvesTextOnly(t *testing.T) {
	var shown int
	r := NewRouter(nil, &fakePauser{}, func(string) { shown++ }, Options{})

	out := r.Speak(context.Background(), "hello")
	if out.Kind != OutcomeTextOnly || shown != 1 {
		t.Fatalf("speak with no backends must still resolve, got %+v shown=%d", out, shown)
	}
}

func TestNewSpeakCancelsInFlightUtterance(t *testing.T) {
	blocking := &fakeBackend{id: "native-platform", block: make(chan struct{})}
	quick := &fakeBackend{id: "in-browser"}
	p := &fakePauser{}
	r := NewRouter([]Backend{blocking, quick}, p, nil, Options{})

	done := make(chan Outcome, 1)
	go func() { done <- r.Speak(context.Background(), "first") }()

	// Wait for the first call to reach the blocking backend.
	for atomic.LoadInt32(&blocking.calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	out2 := r.Speak(context.Background(), "second")
	out1 := <-done

	if out1.Kind != OutcomeCancelled {
		t.Fatalf("superseded speak should resolve cancelled, got %+v", out1)
	}
	if out2.Kind != OutcomeSpoken {
		t.Fatalf("second speak should succeed, got %+v", out2)
	}
	// Only the surviving call resumes recognition.
	if _, resumes := p.counts(); resumes != 1 {
		t.Fatalf("expected exactly one resume, got %d", resumes)
	}
}

func TestAckTableResolve(t *testing.T) {
	tbl := NewAckTable()
	ch := tbl.register("u1")

	tbl.Resolve("u1", "")
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("expected success ack, got %v", err)
		}
	default:
		t.Fatalf("ack not delivered")
	}

	// Late or unknown acks are ignored.
	tbl.Resolve("u1", "late")
	tbl.Resolve("unknown", "")
}

func TestAckTableError(t *testing.T) {
	tbl := NewAckTable()
	ch := tbl.register("u2")
	tbl.Resolve("u2", "synthesis failed")
	if err := <-ch; err == nil {
		t.Fatalf("expected error ack")
	}
}
