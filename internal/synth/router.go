package synth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Options are the synthesis parameters passed to every backend.
type Options struct {
	Rate     float64
	Volume   float64
	Voice    string
	Language string
}

// Backend is one concrete TTS engine.
type Backend interface {
	ID() string
	Speak(ctx context.Context, text string, opts Options) error
}

// Pauser is notified before spoken output begins and after it finishes or
// fails; the microphone must not capture the system's own speech.
type Pauser interface {
	PauseForSynthesis(ctx context.Context)
	ResumeAfterSynthesis(ctx context.Context)
}

// OutcomeKind classifies the terminal result of one Speak call.
type OutcomeKind string

const (
	OutcomeSpoken    OutcomeKind = "spoken"
	OutcomeTextOnly  OutcomeKind = "text_only"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the single terminal result of a Speak call.
type Outcome struct {
	Kind      OutcomeKind
	BackendID string
}

// Router attempts a prioritized backend list, falling through on failure.
// Every Speak call resolves to exactly one Outcome; if all backends fail or
// none exist the text is presented visually instead. Only one utterance
// plays at a time: a new Speak cancels any in-flight one.
type Router struct {
	backends []Backend
	pauser   Pauser
	showText func(text string)
	opts     Options

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewRouter(backends []Backend, pauser Pauser, showText func(string), opts Options) *Router {
	return &Router{backends: backends, pauser: pauser, showText: showText, opts: opts}
}

// Speak voices text through the first backend that succeeds. Recognition is
// paused once for the whole attempt sequence, not once per backend.
func (r *Router) Speak(ctx context.Context, text string) Outcome {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	cctx, cancel := context.WithCancel(ctx)
	r.gen++
	myGen := r.gen
	r.cancel = cancel
	r.mu.Unlock()

	r.pauser.PauseForSynthesis(ctx)
	defer func() {
		cancel()
		r.mu.Lock()
		current := r.gen == myGen
		if current {
			r.cancel = nil
		}
		r.mu.Unlock()
		// A superseding Speak owns the pause now; resuming here would let
		// the microphone hear its utterance.
		if current {
			r.pauser.ResumeAfterSynthesis(ctx)
		}
	}()

	start := time.Now()
	for _, b := range r.backends {
		if cctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled}
		}
		err := b.Speak(cctx, text, r.opts)
		if err == nil {
			metricAttempts.WithLabelValues(b.ID(), "ok").Inc()
			metricSpeakLatency.Observe(float64(time.Since(start).Milliseconds()))
			return Outcome{Kind: OutcomeSpoken, BackendID: b.ID()}
		}
		if errors.Is(err, context.Canceled) {
			return Outcome{Kind: OutcomeCancelled}
		}
		metricAttempts.WithLabelValues(b.ID(), "error").Inc()
		log.Printf("[synth] backend %s failed, falling through: %v", b.ID(), err)
	}

	metricTextFallbacks.Inc()
	if r.showText != nil {
		r.showText(text)
	}
	return Outcome{Kind: OutcomeTextOnly}
}

// CancelCurrent stops any in-flight utterance.
func (r *Router) CancelCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}
