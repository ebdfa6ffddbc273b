package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/autovolt/voice-agent/internal/timers"
	"github.com/autovolt/voice-agent/internal/types"
)

type fakeEngine struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
}

func (f *fakeEngine) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeEngine) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeEngine) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func newTestController(eng *fakeEngine, cfg Config) (*Controller, *[]types.SessionState) {
	if cfg.AutoStop == 0 {
		cfg.AutoStop = time.Second
	}
	if cfg.ConfirmStop == 0 {
		cfg.ConfirmStop = 2 * time.Second
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 10 * time.Millisecond
	}
	var mu sync.Mutex
	states := &[]types.SessionState{}
	c := NewController(Options{
		Engine: func() (Engine, error) { return eng, nil },
		Coord:  timers.New(),
		Config: cfg,
		OnState: func(s types.SessionState, reason string) {
			mu.Lock()
			*states = append(*states, s)
			mu.Unlock()
		},
	})
	return c, states
}

func TestStartTransitionsToListening(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.State() != types.StateListening {
		t.Fatalf("expected listening, got %s", c.State())
	}
	if starts, _ := eng.counts(); starts != 1 {
		t.Fatalf("expected 1 engine start, got %d", starts)
	}
}

func TestStartWhileListeningIsNoOp(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{})

	_ = c.Start(context.Background())
	_ = c.Start(context.Background())

	if starts, _ := eng.counts(); starts != 1 {
		t.Fatalf("double start should not reach engine, got %d starts", starts)
	}
}

func TestStartSwallowsDuplicateStartError(t *testing.T) {
	eng := &fakeEngine{startErr: ErrAlreadyStarted}
	c, _ := newTestController(eng, Config{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("duplicate-start error should be swallowed, got %v", err)
	}
	if c.State() != types.StateListening {
		t.Fatalf("expected listening, got %s", c.State())
	}
}

func TestStartEngineFailureGoesIdle(t *testing.T) {
	eng := &fakeEngine{startErr: errors.New("boom")}
	c, _ := newTestController(eng, Config{})

	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected engine start error")
	}
	if c.State() != types.StateIdle {
		t.Fatalf("expected idle after start failure, got %s", c.State())
	}
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	eng := &fakeEngine{}
	c, states := newTestController(eng, Config{})

	c.Stop(context.Background(), "user")
	c.Stop(context.Background(), "user")

	if c.State() != types.StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
	if _, stops := eng.counts(); stops != 0 {
		t.Fatalf("stop on idle should not reach engine, got %d stops", stops)
	}
	if len(*states) != 0 {
		t.Fatalf("stop on idle should not emit state changes, got %v", *states)
	}
}

func TestFatalInitDisablesVoice(t *testing.T) {
	c := NewController(Options{
		Engine: func() (Engine, error) { return nil, errors.New("no engine on platform") },
		Coord:  timers.New(),
		Config: Config{AutoStop: time.Second, ConfirmStop: time.Second, RestartDelay: time.Millisecond},
	})

	if err := c.Start(context.Background()); !errors.Is(err, ErrVoiceDisabled) {
		t.Fatalf("expected ErrVoiceDisabled, got %v", err)
	}
	// Disabled for the whole session: no second init attempt.
	if err := c.Start(context.Background()); !errors.Is(err, ErrVoiceDisabled) {
		t.Fatalf("expected ErrVoiceDisabled on retry, got %v", err)
	}
}

func TestEngineEndDuringConfirmationRestarts(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{RestartDelay: 5 * time.Millisecond})

	_ = c.Start(context.Background())
	_ = c.EnterConfirmation(context.Background())
	c.HandleEngineEnd(context.Background())

	time.Sleep(40 * time.Millisecond)
	if starts, _ := eng.counts(); starts != 2 {
		t.Fatalf("expected restart after engine end during confirmation, got %d starts", starts)
	}
	if c.State() != types.StateListeningForConfirmation {
		t.Fatalf("expected to stay in confirmation wait, got %s", c.State())
	}
}

func TestEngineEndWhileListeningGoesIdle(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{RestartDelay: 5 * time.Millisecond})

	_ = c.Start(context.Background())
	c.HandleEngineEnd(context.Background())

	time.Sleep(30 * time.Millisecond)
	if c.State() != types.StateIdle {
		t.Fatalf("expected idle after engine end, got %s", c.State())
	}
	if starts, _ := eng.counts(); starts != 1 {
		t.Fatalf("no restart expected in non-continuous listening, got %d starts", starts)
	}
}

func TestEngineEndContinuousRestarts(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{Continuous: true, RestartDelay: 5 * time.Millisecond})

	_ = c.Start(context.Background())
	c.HandleEngineEnd(context.Background())

	time.Sleep(40 * time.Millisecond)
	if starts, _ := eng.counts(); starts != 2 {
		t.Fatalf("expected continuous-mode restart, got %d starts", starts)
	}
}

func TestEngineEndAfterExplicitStopStaysIdle(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{RestartDelay: 5 * time.Millisecond})

	_ = c.Start(context.Background())
	_ = c.EnterConfirmation(context.Background())
	c.Stop(context.Background(), "user")
	c.HandleEngineEnd(context.Background())

	time.Sleep(40 * time.Millisecond)
	if starts, _ := eng.counts(); starts != 1 {
		t.Fatalf("explicit stop must suppress restart, got %d starts", starts)
	}
	if c.State() != types.StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestPauseResumeForConfirmation(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{RestartDelay: 5 * time.Millisecond})

	_ = c.Start(context.Background())
	_ = c.EnterConfirmation(context.Background())
	c.PauseForSynthesis(context.Background())

	if c.State() != types.StateSpeaking {
		t.Fatalf("expected speaking during synthesis, got %s", c.State())
	}
	if _, stops := eng.counts(); stops != 1 {
		t.Fatalf("pause should stop the engine, got %d stops", stops)
	}

	c.ResumeAfterSynthesis(context.Background())
	time.Sleep(40 * time.Millisecond)

	if c.State() != types.StateListeningForConfirmation {
		t.Fatalf("expected confirmation listening after resume, got %s", c.State())
	}
	if starts, _ := eng.counts(); starts != 2 {
		t.Fatalf("expected engine restart after resume, got %d starts", starts)
	}
}

func TestResumeWithoutPendingGoesIdle(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{RestartDelay: 5 * time.Millisecond})

	_ = c.Start(context.Background())
	c.PauseForSynthesis(context.Background())
	c.ResumeAfterSynthesis(context.Background())

	time.Sleep(30 * time.Millisecond)
	if c.State() != types.StateIdle {
		t.Fatalf("expected idle after speaking with nothing pending, got %s", c.State())
	}
	if starts, _ := eng.counts(); starts != 1 {
		t.Fatalf("no restart expected, got %d starts", starts)
	}
}

func TestAutoStopFiresOnSilence(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{AutoStop: 15 * time.Millisecond, ConfirmStop: 15 * time.Millisecond})

	_ = c.Start(context.Background())
	time.Sleep(60 * time.Millisecond)

	if c.State() != types.StateIdle {
		t.Fatalf("expected auto-stop to idle, got %s", c.State())
	}
	if _, stops := eng.counts(); stops != 1 {
		t.Fatalf("expected engine stopped by auto-stop, got %d stops", stops)
	}
}

func TestAutoStopDisabledInContinuousMode(t *testing.T) {
	eng := &fakeEngine{}
	c, _ := newTestController(eng, Config{Continuous: true, AutoStop: 10 * time.Millisecond, ConfirmStop: 10 * time.Millisecond})

	_ = c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	if c.State() != types.StateListening {
		t.Fatalf("continuous mode should never auto-stop, got %s", c.State())
	}
}

func TestResultsDroppedWhileSpeaking(t *testing.T) {
	eng := &fakeEngine{}
	var got []string
	c := NewController(Options{
		Engine:       func() (Engine, error) { return eng, nil },
		Coord:        timers.New(),
		Config:       Config{AutoStop: time.Second, ConfirmStop: time.Second, RestartDelay: time.Millisecond},
		OnTranscript: func(text string, conf float64) { got = append(got, text) },
	})

	_ = c.Start(context.Background())
	c.HandleEngineResult("turn on fan", true, 0.9)
	c.PauseForSynthesis(context.Background())
	c.HandleEngineResult("echo of own voice", true, 0.9)

	if len(got) != 1 || got[0] != "turn on fan" {
		t.Fatalf("expected only the pre-synthesis transcript, got %v", got)
	}
}

func TestInterimResultsNotForwarded(t *testing.T) {
	eng := &fakeEngine{}
	var got []string
	c := NewController(Options{
		Engine:       func() (Engine, error) { return eng, nil },
		Coord:        timers.New(),
		Config:       Config{AutoStop: time.Second, ConfirmStop: time.Second, RestartDelay: time.Millisecond},
		OnTranscript: func(text string, conf float64) { got = append(got, text) },
	})

	_ = c.Start(context.Background())
	c.HandleEngineResult("turn on", false, 0.5)
	c.HandleEngineResult("turn on fan three", true, 0.9)

	if len(got) != 1 {
		t.Fatalf("expected only final transcripts forwarded, got %v", got)
	}
}

func TestNoSpeechErrorIgnored(t *testing.T) {
	eng := &fakeEngine{}
	var notices []string
	c := NewController(Options{
		Engine:   func() (Engine, error) { return eng, nil },
		Coord:    timers.New(),
		Config:   Config{AutoStop: time.Second, ConfirmStop: time.Second, RestartDelay: time.Millisecond},
		OnNotice: func(level, msg string) { notices = append(notices, msg) },
	})

	_ = c.Start(context.Background())
	c.HandleEngineError(context.Background(), ErrCodeNoSpeech, "")
	c.HandleEngineError(context.Background(), ErrCodeAborted, "")

	if c.State() != types.StateListening {
		t.Fatalf("expected listening to survive ignorable errors, got %s", c.State())
	}
	if len(notices) != 0 {
		t.Fatalf("ignorable errors must not surface, got %v", notices)
	}
}

func TestPermissionErrorSurfacesOnce(t *testing.T) {
	eng := &fakeEngine{}
	var notices []string
	c := NewController(Options{
		Engine:   func() (Engine, error) { return eng, nil },
		Coord:    timers.New(),
		Config:   Config{AutoStop: time.Second, ConfirmStop: time.Second, RestartDelay: time.Millisecond},
		OnNotice: func(level, msg string) { notices = append(notices, msg) },
	})

	_ = c.Start(context.Background())
	c.HandleEngineError(context.Background(), ErrCodeNotAllowed, "denied")
	_ = c.Start(context.Background())
	c.HandleEngineError(context.Background(), ErrCodeNotAllowed, "denied")

	if c.State() != types.StateIdle {
		t.Fatalf("expected idle after permission error, got %s", c.State())
	}
	if len(notices) != 1 {
		t.Fatalf("permission error should surface exactly once, got %v", notices)
	}
}
