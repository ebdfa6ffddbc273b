package recognition

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/autovolt/voice-agent/internal/timers"
	"github.com/autovolt/voice-agent/internal/types"
)

// Config holds the timing and mode knobs for one controller.
type Config struct {
	Continuous   bool
	AutoStop     time.Duration // silence window in normal listening
	ConfirmStop  time.Duration // longer window while awaiting confirmation
	RestartDelay time.Duration // delay before restarting a self-terminated engine
}

// Options wires a controller to its collaborators.
type Options struct {
	Engine EngineFactory
	Coord  *timers.Coordinator
	Config Config

	// OnState observes every state transition.
	OnState func(state types.SessionState, reason string)
	// OnTranscript receives final transcripts accepted while listening.
	OnTranscript func(text string, confidence float64)
	// OnNotice is the user-visible error channel.
	OnNotice func(level, msg string)
}

// Controller owns the one logical listening session: start, stop,
// restart-after-end, and suppression of recognition while synthesis plays.
// The underlying engine instance is exclusively owned here; callers never
// touch it directly.
type Controller struct {
	mu    sync.Mutex
	opts  Options
	coord *timers.Coordinator

	engine            Engine
	state             types.SessionState
	engineActive      bool
	stopRequested     bool
	pausedForTTS      bool
	resumeConfirm     bool
	resumeListen      bool
	disabled          bool
	noticedPermission bool
}

func NewController(opts Options) *Controller {
	return &Controller{
		opts:  opts,
		coord: opts.Coord,
		state: types.StateIdle,
	}
}

// State returns the current session state.
func (c *Controller) State() types.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins listening. Starting while already listening is a no-op, and
// duplicate-start errors from the underlying engine are swallowed.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disabled {
		c.mu.Unlock()
		return ErrVoiceDisabled
	}
	if c.state == types.StateListening || c.state == types.StateListeningForConfirmation {
		c.mu.Unlock()
		return nil
	}
	if c.engine == nil {
		eng, err := c.opts.Engine()
		if err != nil {
			c.disabled = true
			c.mu.Unlock()
			c.notice("error", "voice recognition is unavailable on this device")
			log.Printf("[recog] engine init failed, voice disabled: %v", err)
			return ErrVoiceDisabled
		}
		c.engine = eng
	}
	eng := c.engine
	c.stopRequested = false
	emit := c.setStateLocked(types.StateListening, "start")
	c.armAutoStopLocked()
	c.engineActive = true
	c.mu.Unlock()
	emit()

	if err := eng.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		c.mu.Lock()
		c.engineActive = false
		emit := c.setStateLocked(types.StateIdle, "engine_start_failed")
		c.coord.Cancel(timers.PurposeAutoStop)
		c.mu.Unlock()
		emit()
		c.notice("error", "could not start listening")
		return err
	}
	return nil
}

// Stop ends listening. Always safe to call regardless of current state;
// stopping an idle controller changes nothing.
func (c *Controller) Stop(ctx context.Context, reason string) {
	c.mu.Lock()
	c.coord.Cancel(timers.PurposeAutoStop)
	c.coord.Cancel(timers.PurposeRestartAfterTTS)
	c.stopRequested = true
	wasActive := c.engineActive
	c.engineActive = false
	var emit func()
	if c.state != types.StateIdle {
		emit = c.setStateLocked(types.StateIdle, reason)
	}
	eng := c.engine
	c.mu.Unlock()

	if wasActive && eng != nil {
		if err := eng.Stop(ctx); err != nil {
			log.Printf("[recog] engine stop: %v", err)
		}
	}
	if emit != nil {
		emit()
	}
}

// EnterConfirmation switches to the confirmation listening sub-state and
// widens the silence window; confirmation replies take longer to formulate.
func (c *Controller) EnterConfirmation(ctx context.Context) error {
	c.mu.Lock()
	if c.disabled {
		c.mu.Unlock()
		return ErrVoiceDisabled
	}
	emit := c.setStateLocked(types.StateListeningForConfirmation, "confirmation_requested")
	c.armAutoStopLocked()
	needStart := !c.engineActive
	if needStart {
		c.engineActive = true
	}
	eng := c.engine
	c.mu.Unlock()
	emit()

	if needStart && eng != nil {
		if err := eng.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
			return err
		}
	}
	return nil
}

// ExitConfirmation leaves the confirmation sub-state, either back to normal
// listening or to idle.
func (c *Controller) ExitConfirmation(ctx context.Context, keepListening bool) {
	c.mu.Lock()
	if c.state != types.StateListeningForConfirmation {
		c.mu.Unlock()
		return
	}
	if keepListening {
		emit := c.setStateLocked(types.StateListening, "confirmation_resolved")
		c.armAutoStopLocked()
		c.mu.Unlock()
		emit()
		return
	}
	c.mu.Unlock()
	c.Stop(ctx, "confirmation_resolved")
}

// MarkProcessing flags the session as dispatching a command.
func (c *Controller) MarkProcessing() {
	c.mu.Lock()
	emit := c.setStateLocked(types.StateProcessing, "dispatching")
	c.coord.Cancel(timers.PurposeAutoStop)
	c.mu.Unlock()
	emit()
}

// PauseForSynthesis stops recognition before spoken output begins so the
// microphone does not transcribe the system's own voice.
func (c *Controller) PauseForSynthesis(ctx context.Context) {
	c.mu.Lock()
	if c.pausedForTTS {
		c.mu.Unlock()
		return
	}
	c.pausedForTTS = true
	c.resumeConfirm = c.state == types.StateListeningForConfirmation
	c.resumeListen = c.resumeConfirm || (c.opts.Config.Continuous && c.state == types.StateListening)
	c.coord.Cancel(timers.PurposeAutoStop)
	wasActive := c.engineActive
	c.engineActive = false
	emit := c.setStateLocked(types.StateSpeaking, "synthesis_started")
	eng := c.engine
	c.mu.Unlock()
	emit()

	if wasActive && eng != nil {
		if err := eng.Stop(ctx); err != nil {
			log.Printf("[recog] pause stop: %v", err)
		}
	}
}

// ResumeAfterSynthesis restarts recognition after spoken output, if
// continuous mode or a pending confirmation requires it. The restart is
// delayed slightly so the tail of the utterance is not transcribed.
func (c *Controller) ResumeAfterSynthesis(ctx context.Context) {
	c.mu.Lock()
	if !c.pausedForTTS {
		c.mu.Unlock()
		return
	}
	c.pausedForTTS = false
	resume := c.resumeListen && !c.stopRequested && !c.disabled
	confirm := c.resumeConfirm
	c.resumeListen = false
	c.resumeConfirm = false
	if !resume {
		var emit func()
		if c.state == types.StateSpeaking {
			emit = c.setStateLocked(types.StateIdle, "synthesis_finished")
		}
		c.mu.Unlock()
		if emit != nil {
			emit()
		}
		return
	}
	c.mu.Unlock()

	c.coord.Schedule(timers.PurposeRestartAfterTTS, c.opts.Config.RestartDelay, func() {
		c.restartAfterPause(ctx, confirm)
	})
}

func (c *Controller) restartAfterPause(ctx context.Context, confirm bool) {
	c.mu.Lock()
	// Re-validate: an explicit stop or a new synthesis may have intervened.
	if c.stopRequested || c.pausedForTTS || c.disabled || c.state != types.StateSpeaking {
		c.mu.Unlock()
		return
	}
	target := types.StateListening
	if confirm {
		target = types.StateListeningForConfirmation
	}
	emit := c.setStateLocked(target, "synthesis_finished")
	c.armAutoStopLocked()
	c.engineActive = true
	eng := c.engine
	c.mu.Unlock()
	emit()

	metricEngineRestarts.Inc()
	if eng != nil {
		if err := eng.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
			log.Printf("[recog] restart after tts: %v", err)
		}
	}
}

// HandleEngineResult is the engine's onResult callback. Results arriving
// while not listening (notably while the system itself is speaking) are
// dropped.
func (c *Controller) HandleEngineResult(text string, isFinal bool, confidence float64) {
	c.mu.Lock()
	listening := c.state == types.StateListening || c.state == types.StateListeningForConfirmation
	if !listening {
		c.mu.Unlock()
		metricResultsDropped.Inc()
		return
	}
	if !isFinal {
		// Interim results only refresh the silence window.
		c.armAutoStopLocked()
		c.mu.Unlock()
		return
	}
	c.armAutoStopLocked()
	sink := c.opts.OnTranscript
	c.mu.Unlock()

	if sink != nil {
		sink(text, confidence)
	}
}

// HandleEngineEnd is the engine's onEnd callback. Engines may self-terminate
// after brief silence even in continuous configuration; if a confirmation is
// still pending the engine is restarted after a short fixed delay so the
// wait does not silently end.
func (c *Controller) HandleEngineEnd(ctx context.Context) {
	c.mu.Lock()
	c.engineActive = false
	if c.stopRequested || c.disabled {
		c.mu.Unlock()
		return
	}
	shouldRestart := c.state == types.StateListeningForConfirmation ||
		(c.opts.Config.Continuous && c.state == types.StateListening)
	if !shouldRestart {
		var emit func()
		if c.state == types.StateListening {
			emit = c.setStateLocked(types.StateIdle, "engine_ended")
			c.coord.Cancel(timers.PurposeAutoStop)
		}
		c.mu.Unlock()
		if emit != nil {
			emit()
		}
		return
	}
	c.mu.Unlock()

	c.coord.Schedule(timers.PurposeRestartAfterTTS, c.opts.Config.RestartDelay, func() {
		c.mu.Lock()
		stillWanted := !c.stopRequested && !c.engineActive && !c.pausedForTTS &&
			(c.state == types.StateListeningForConfirmation || c.state == types.StateListening)
		if !stillWanted {
			c.mu.Unlock()
			return
		}
		c.engineActive = true
		eng := c.engine
		c.mu.Unlock()

		metricEngineRestarts.Inc()
		if eng != nil {
			if err := eng.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyStarted) {
				log.Printf("[recog] restart after end: %v", err)
			}
		}
	})
}

// HandleEngineError is the engine's onError callback. "no speech" and
// "aborted" are expected and ignored; permission errors surface once;
// everything else surfaces and forces idle.
func (c *Controller) HandleEngineError(ctx context.Context, code, msg string) {
	switch code {
	case ErrCodeNoSpeech, ErrCodeAborted:
		metricErrorsSwallowed.WithLabelValues(code).Inc()
		return
	case ErrCodeNotAllowed:
		c.mu.Lock()
		first := !c.noticedPermission
		c.noticedPermission = true
		c.mu.Unlock()
		if first {
			c.notice("warn", "microphone access was denied")
		}
		c.Stop(ctx, "permission_denied")
	default:
		log.Printf("[recog] engine error code=%s msg=%s", code, msg)
		c.notice("error", "voice recognition error: "+code)
		c.Stop(ctx, "engine_error")
	}
}

// armAutoStopLocked (re)arms the silence auto-stop for the current state.
// Disabled entirely in continuous mode.
func (c *Controller) armAutoStopLocked() {
	if c.opts.Config.Continuous {
		return
	}
	d := c.opts.Config.AutoStop
	if c.state == types.StateListeningForConfirmation {
		d = c.opts.Config.ConfirmStop
	}
	c.coord.Schedule(timers.PurposeAutoStop, d, func() {
		c.mu.Lock()
		// Re-validate: only stop if still listening and not speaking.
		listening := c.state == types.StateListening || c.state == types.StateListeningForConfirmation
		if !listening || c.pausedForTTS {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		metricAutoStops.Inc()
		c.Stop(context.Background(), "auto_stop")
	})
}

// setStateLocked transitions state and returns the emit closure to run after
// unlocking. Callers must hold c.mu.
func (c *Controller) setStateLocked(to types.SessionState, reason string) func() {
	from := c.state
	if from == to {
		return func() {}
	}
	c.state = to
	metricStateTransitions.WithLabelValues(string(from), string(to)).Inc()
	cb := c.opts.OnState
	return func() {
		if cb != nil {
			cb(to, reason)
		}
	}
}

func (c *Controller) notice(level, msg string) {
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(level, msg)
	}
}
