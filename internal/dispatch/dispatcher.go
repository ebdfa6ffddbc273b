package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/autovolt/voice-agent/internal/config"
	"github.com/autovolt/voice-agent/internal/confirm"
	"github.com/autovolt/voice-agent/internal/executor"
	"github.com/autovolt/voice-agent/internal/notify"
	"github.com/autovolt/voice-agent/internal/panelws"
	"github.com/autovolt/voice-agent/internal/probe"
	"github.com/autovolt/voice-agent/internal/recognition"
	"github.com/autovolt/voice-agent/internal/store"
	"github.com/autovolt/voice-agent/internal/synth"
	"github.com/autovolt/voice-agent/internal/timers"
	"github.com/autovolt/voice-agent/internal/types"
)

const workQueueSize = 16

// session is the per-session aggregate: controller, gate, router, timers,
// acks, and the serial work loop that orders transcript handling.
type session struct {
	id    string
	coord *timers.Coordinator
	ctrl  *recognition.Controller
	gate  *confirm.Gate
	acks  *synth.AckTable

	mu     sync.Mutex
	router *synth.Router
	caps   probe.Result

	processing atomic.Bool

	work chan func()
	done chan struct{}
}

func (s *session) setRouter(r *synth.Router, caps probe.Result) {
	s.mu.Lock()
	s.router = r
	s.caps = caps
	s.mu.Unlock()
}

func (s *session) currentRouter() *synth.Router {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router
}

func (s *session) capabilities() probe.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// enqueue hands fn to the session's serial loop. Returns false when the loop
// is gone or the queue is full; the caller drops the work rather than block
// the websocket read goroutine.
func (s *session) enqueue(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.work <- fn:
		return true
	default:
		return false
	}
}

func (s *session) run() {
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.done:
			return
		}
	}
}

// Dispatcher routes accepted transcripts to the confirmation gate and the
// command executor, and routes inbound panel frames to the right per-session
// collaborator. One session aggregate exists per active session.
type Dispatcher struct {
	cfg      config.Config
	store    *store.Store
	reg      *panelws.Registry
	exec     executor.Client
	notifier notify.Notifier

	mu       sync.Mutex
	sessions map[string]*session

	// engineFactory overrides the panel bridge engine (tests).
	engineFactory func(sessionID string) recognition.EngineFactory
}

func New(cfg config.Config, st *store.Store, reg *panelws.Registry, exec executor.Client, n notify.Notifier) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		store:    st,
		reg:      reg,
		exec:     exec,
		notifier: n,
		sessions: make(map[string]*session),
	}
}

// CreateSession builds the aggregate for a new session. The synthesis router
// starts empty; it is populated when the panel's hello frame reports its
// capabilities. Speak before that resolves text-only, which is the right
// degradation.
func (d *Dispatcher) CreateSession(id string) {
	coord := timers.New()
	sess := &session{
		id:    id,
		coord: coord,
		acks:  synth.NewAckTable(),
		work:  make(chan func(), workQueueSize),
		done:  make(chan struct{}),
	}

	factory := recognition.EngineFactory(func() (recognition.Engine, error) {
		return panelws.NewEngine(d.reg, id, d.cfg.Voice.Language), nil
	})
	if d.engineFactory != nil {
		factory = d.engineFactory(id)
	}

	sess.ctrl = recognition.NewController(recognition.Options{
		Engine: factory,
		Coord:  coord,
		Config: recognition.Config{
			Continuous:   d.cfg.Voice.Continuous,
			AutoStop:     time.Duration(d.cfg.Voice.AutoStopSec) * time.Second,
			ConfirmStop:  time.Duration(d.cfg.Voice.ConfirmStopSec) * time.Second,
			RestartDelay: time.Duration(d.cfg.Voice.RestartAfterTTSMs) * time.Millisecond,
		},
		OnState: func(state types.SessionState, reason string) {
			d.notifier.StateChanged(id, state, reason)
		},
		OnTranscript: func(text string, confidence float64) {
			if !sess.enqueue(func() { d.handleTranscript(context.Background(), sess, text, confidence) }) {
				metricQueueDrops.Inc()
			}
		},
		OnNotice: func(level, msg string) {
			d.notifier.Toast(id, level, msg)
		},
	})

	sess.gate = confirm.New(coord,
		time.Duration(d.cfg.Voice.ConfirmTimeoutSec)*time.Second,
		d.cfg.Voice.CriticalPatterns,
		func(act confirm.PendingAction) {
			if !sess.enqueue(func() { d.handleConfirmTimeout(context.Background(), sess, act) }) {
				metricQueueDrops.Inc()
			}
		})

	sess.setRouter(d.buildRouter(sess, nil), probe.Rank(d.serverCapabilities()))
	go sess.run()

	d.mu.Lock()
	d.sessions[id] = sess
	d.mu.Unlock()
}

// RemoveSession tears the aggregate down: pending confirmation discarded,
// timers disarmed, recognition stopped, in-flight speech cancelled.
func (d *Dispatcher) RemoveSession(ctx context.Context, id string) {
	d.mu.Lock()
	sess := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()
	if sess == nil {
		return
	}
	close(sess.done)
	sess.gate.Clear()
	sess.ctrl.Stop(ctx, "session_closed")
	if r := sess.currentRouter(); r != nil {
		r.CancelCurrent()
	}
	sess.coord.CancelAll()
}

func (d *Dispatcher) get(id string) *session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[id]
}

// Toggle flips listening for the session. Returns the new listening state.
func (d *Dispatcher) Toggle(ctx context.Context, id string) (bool, error) {
	sess := d.get(id)
	if sess == nil {
		return false, fmt.Errorf("unknown session %s", id)
	}
	switch sess.ctrl.State() {
	case types.StateIdle:
		if err := sess.ctrl.Start(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		sess.ctrl.Stop(ctx, "toggle")
		return false, nil
	}
}

// Capabilities returns the session's cached probe result.
func (d *Dispatcher) Capabilities(id string) probe.Result {
	if sess := d.get(id); sess != nil {
		return sess.capabilities()
	}
	return nil
}

// OnPanelMessage routes one inbound panel frame. Wired as the websocket
// server's message callback.
func (d *Dispatcher) OnPanelMessage(sessionID string, msg panelws.Message) {
	sess := d.get(sessionID)
	if sess == nil {
		log.Printf("[dispatch] frame %s for unknown session %s", msg.Type, sessionID)
		return
	}
	switch msg.Type {
	case "hello":
		d.handleHello(sess, msg)
	case "result":
		sess.ctrl.HandleEngineResult(msg.Text, msg.Final, msg.Confidence)
	case "end":
		sess.ctrl.HandleEngineEnd(context.Background())
	case "error":
		sess.ctrl.HandleEngineError(context.Background(), msg.Code, msg.Text)
	case "tts_done":
		sess.acks.Resolve(msg.UtteranceID, "")
	case "tts_error":
		reason := msg.Code
		if reason == "" {
			reason = "synthesis failed"
		}
		sess.acks.Resolve(msg.UtteranceID, reason)
	default:
		log.Printf("[dispatch] unhandled panel frame type=%s session=%s", msg.Type, sessionID)
	}
}

// OnPanelDisconnect stops recognition when the panel drops; the engine lives
// on the other side of that socket. The session itself survives for a
// reconnect.
func (d *Dispatcher) OnPanelDisconnect(sessionID string) {
	if sess := d.get(sessionID); sess != nil {
		sess.ctrl.Stop(context.Background(), "panel_disconnected")
	}
}

// handleHello merges the panel's reported capabilities with the server-side
// ones and rebuilds the synthesis chain. The result is cached for the
// session's lifetime.
func (d *Dispatcher) handleHello(sess *session, msg panelws.Message) {
	caps := probe.Merge(d.serverCapabilities(), probe.FromHello(msg.Payload))
	sess.setRouter(d.buildRouter(sess, caps.Synthesis()), caps)

	ids := make([]string, 0, len(caps))
	for _, c := range caps {
		ids = append(ids, string(c.Kind)+":"+c.ID+"="+string(c.Availability))
	}
	d.store.AppendEvent(sess.id, "capabilities", map[string]any{"ranked": ids})
	log.Printf("[dispatch] session %s capabilities: %s", sess.id, strings.Join(ids, " "))
}

func (d *Dispatcher) serverCapabilities() []probe.Capability {
	var caps []probe.Capability
	if d.cfg.TTS.Enabled && d.cfg.TTS.CloudAPIKey != "" && d.cfg.TTS.CloudVoiceID != "" {
		caps = append(caps, probe.Capability{ID: probe.SynthCloud, Kind: probe.KindSynthesis, Availability: probe.Available})
	}
	return caps
}

func (d *Dispatcher) buildRouter(sess *session, synthCaps []probe.Capability) *synth.Router {
	var backends []synth.Backend
	if d.cfg.TTS.Enabled {
		for _, c := range synthCaps {
			switch c.ID {
			case probe.SynthCloud:
				backends = append(backends, synth.NewCloudBackend(d.cfg.TTS.CloudAPIKey, d.cfg.TTS.CloudVoiceID, sess.id, d.reg))
			default:
				backends = append(backends, synth.NewBridgeBackend(c.ID, sess.id, d.reg, sess.acks))
			}
		}
	}
	opts := synth.Options{
		Rate:     d.cfg.TTS.Rate,
		Volume:   d.cfg.TTS.Volume,
		Language: d.cfg.Voice.Language,
	}
	showText := func(text string) { d.notifier.ShowText(sess.id, text) }
	return synth.NewRouter(backends, sess.ctrl, showText, opts)
}

// handleTranscript is the heart of the dispatcher: noise filtering, then
// confirmation routing, then execution. Runs on the session's serial loop.
func (d *Dispatcher) handleTranscript(ctx context.Context, sess *session, text string, confidence float64) {
	text = strings.TrimSpace(text)
	if reason := d.filterReason(text, confidence); reason != "" {
		metricFiltered.WithLabelValues(reason).Inc()
		d.store.AppendEvent(sess.id, "transcript_filtered", map[string]any{"reason": reason, "text": text})
		return
	}
	if sess.processing.Load() {
		metricFiltered.WithLabelValues("busy_processing").Inc()
		return
	}
	d.store.SetLastTranscript(sess.id, text)

	if outcome, act, ok := sess.gate.Resolve(text); ok {
		switch outcome {
		case confirm.OutcomeConfirmed:
			sess.ctrl.ExitConfirmation(ctx, d.cfg.Voice.Continuous)
			d.execute(ctx, sess, act.RawCommand, confidence, true)
		case confirm.OutcomeCancelled:
			sess.ctrl.ExitConfirmation(ctx, d.cfg.Voice.Continuous)
			d.store.AppendEvent(sess.id, "confirmation_cancelled", map[string]any{"command": act.RawCommand})
			d.speak(ctx, sess, "Okay, cancelled.")
			d.resumeIfContinuous(ctx, sess)
		case confirm.OutcomeUnclear:
			if sess.gate.RequiresConfirmation(text) {
				// A second critical command while one awaits confirmation is
				// rejected outright, never queued. The original stays pending.
				metricBusy.Inc()
				d.speak(ctx, sess, "One action is already waiting for confirmation. Please answer yes or no first.")
				return
			}
			// Episode stays open; the reply pauses and resumes back into
			// confirmation listening.
			d.speak(ctx, sess, "Please answer yes or no.")
		}
		return
	}

	if sess.gate.RequiresConfirmation(text) {
		if err := sess.gate.Begin(text); err != nil {
			d.speak(ctx, sess, "One action is already waiting for confirmation. Please answer it first.")
			return
		}
		if err := sess.ctrl.EnterConfirmation(ctx); err != nil {
			// Cannot listen for the reply; never execute unconfirmed.
			sess.gate.Clear()
			d.notifier.Toast(sess.id, "warn", "confirmation requires voice input; use the panel instead")
			return
		}
		d.store.AppendEvent(sess.id, "confirmation_requested", map[string]any{"command": text})
		d.speak(ctx, sess, fmt.Sprintf("You asked to %s. Say yes to confirm or no to cancel.", text))
		return
	}

	d.execute(ctx, sess, text, confidence, false)
}

// filterReason classifies noise. Zero confidence means the engine did not
// report one and is accepted; only a reported sub-threshold confidence is
// rejected.
func (d *Dispatcher) filterReason(text string, confidence float64) string {
	switch {
	case len(text) < d.cfg.Voice.MinTranscript:
		return "too_short"
	case len(text) > d.cfg.Voice.MaxTranscript:
		return "too_long"
	case confidence > 0 && confidence < d.cfg.Voice.MinConfidence:
		return "low_confidence"
	}
	return ""
}

func (d *Dispatcher) handleConfirmTimeout(ctx context.Context, sess *session, act confirm.PendingAction) {
	d.store.AppendEvent(sess.id, "confirmation_timeout", map[string]any{"command": act.RawCommand})
	sess.ctrl.ExitConfirmation(ctx, d.cfg.Voice.Continuous)
	d.speak(ctx, sess, "Confirmation timed out. The command was discarded.")
	d.resumeIfContinuous(ctx, sess)
}

func (d *Dispatcher) execute(ctx context.Context, sess *session, command string, confidence float64, confirmed bool) {
	sess.processing.Store(true)
	sess.ctrl.MarkProcessing()

	start := time.Now()
	res, err := d.exec.Execute(ctx, command)
	sess.processing.Store(false)

	rec := types.CommandRecord{
		ID:         uuid.New().String(),
		Text:       command,
		Confidence: confidence,
		Confirmed:  confirmed,
		Success:    err == nil && res.Success,
		Message:    res.Message,
		Ts:         time.Now().UTC(),
	}
	if err != nil {
		rec.Message = err.Error()
	}
	d.store.AppendCommand(sess.id, rec)

	result := "ok"
	msg := res.Message
	switch {
	case err != nil:
		result = "unreachable"
		msg = "The switch controller is not responding. Please try again."
		log.Printf("[dispatch] execute session=%s command=%q: %v", sess.id, command, err)
	case !res.Success:
		result = "rejected"
		if msg == "" {
			msg = "That command could not be completed."
		}
	default:
		if msg == "" {
			msg = "Done."
		}
	}
	metricCommands.WithLabelValues(result).Inc()
	log.Printf("[dispatch] session=%s command=%q result=%s took=%s", sess.id, command, result, time.Since(start).Round(time.Millisecond))

	d.speak(ctx, sess, msg)
	d.resumeIfContinuous(ctx, sess)
}

// speak voices text through the session's router. Every call resolves; on a
// fully failed chain the router already presented the text visually.
func (d *Dispatcher) speak(ctx context.Context, sess *session, text string) {
	r := sess.currentRouter()
	out := r.Speak(ctx, text)
	d.store.AppendEvent(sess.id, "speak_outcome", map[string]any{"kind": string(out.Kind), "backend": out.BackendID})
}

// resumeIfContinuous restarts listening after a spoken response when the
// session runs hands-free. Pausing for synthesis from the processing state
// loses the listening intent, so the restart is explicit here.
func (d *Dispatcher) resumeIfContinuous(ctx context.Context, sess *session) {
	if !d.cfg.Voice.Continuous {
		return
	}
	if err := sess.ctrl.Start(ctx); err != nil {
		log.Printf("[dispatch] continuous resume session=%s: %v", sess.id, err)
	}
}
