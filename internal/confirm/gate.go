package confirm

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/autovolt/voice-agent/internal/timers"
)

// Outcome is the result of one confirmation episode step.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeUnclear   Outcome = "unclear"
	OutcomeTimedOut  Outcome = "timed_out"
)

// ErrBusy is returned when a critical command arrives while another
// confirmation is still pending. The second command is rejected, never
// queued silently.
var ErrBusy = errors.New("another confirmation is already pending")

// PendingAction is the command held between "confirmation requested" and
// its resolution.
type PendingAction struct {
	RawCommand string
	Critical   bool
	CreatedAt  time.Time
}

// Default vocabulary. Critical patterns flag commands that affect many
// devices or are hard to reverse; the yes/no sets are deliberately broad,
// word-boundary matched.
var (
	defaultCritical = []string{
		`\b(all|every|everything)\b`,
		`\b(shutdown|shut down|power down|power off)\b`,
		`\b(reset|reboot|restart)\b`,
	}
	affirmativeRe = regexp.MustCompile(`(?i)\b(yes|yeah|yep|sure|confirm|confirmed|proceed|go ahead|affirmative|ok|okay|do it)\b`)
	negativeRe    = regexp.MustCompile(`(?i)\b(no|nope|cancel|stop|abort|negative|never mind|nevermind|don'?t)\b`)
)

// Gate classifies commands as requiring spoken confirmation, holds the one
// pending action, and resolves it from a second recognition pass. At most
// one action is pending at a time.
type Gate struct {
	mu      sync.Mutex
	coord   *timers.Coordinator
	timeout time.Duration

	critical []*regexp.Regexp
	episode  uint64
	pending  *PendingAction

	// onTimeout receives the discarded action when the episode times out.
	onTimeout func(PendingAction)
}

// New builds a gate. extraCritical patterns (uncompiled, case-insensitive)
// extend the default critical vocabulary.
func New(coord *timers.Coordinator, timeout time.Duration, extraCritical []string, onTimeout func(PendingAction)) *Gate {
	g := &Gate{coord: coord, timeout: timeout, onTimeout: onTimeout}
	for _, p := range append(append([]string{}, defaultCritical...), extraCritical...) {
		g.critical = append(g.critical, regexp.MustCompile(`(?i)`+p))
	}
	return g
}

// RequiresConfirmation reports whether text matches the critical vocabulary.
func (g *Gate) RequiresConfirmation(text string) bool {
	for _, re := range g.critical {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Pending reports whether a confirmation episode is in progress.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Begin opens a confirmation episode for rawCommand and arms the timeout.
// Returns ErrBusy if one is already pending.
func (g *Gate) Begin(rawCommand string) error {
	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		metricBusyRejections.Inc()
		return ErrBusy
	}
	g.episode++
	ep := g.episode
	g.pending = &PendingAction{RawCommand: rawCommand, Critical: true, CreatedAt: time.Now()}
	g.mu.Unlock()

	g.armTimeout(ep)
	return nil
}

// armTimeout arms (or re-arms) the episode timeout. The callback
// re-validates that the same episode is still unresolved before acting; a
// timer surviving past resolution must be a no-op.
func (g *Gate) armTimeout(ep uint64) {
	g.coord.Schedule(timers.PurposeConfirmTimeout, g.timeout, func() {
		g.mu.Lock()
		if g.episode != ep || g.pending == nil {
			g.mu.Unlock()
			return
		}
		act := *g.pending
		g.pending = nil
		g.mu.Unlock()

		metricOutcomes.WithLabelValues(string(OutcomeTimedOut)).Inc()
		if g.onTimeout != nil {
			g.onTimeout(act)
		}
	})
}

// Resolve interprets a transcript as a confirmation reply. The ok result is
// false when no episode is pending. On Confirmed and Cancelled the timeout
// timer is cancelled synchronously before returning, so it can never fire
// after resolution. On Unclear the episode stays open and the timeout budget
// is reset.
func (g *Gate) Resolve(transcript string) (Outcome, PendingAction, bool) {
	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return "", PendingAction{}, false
	}

	// Negative intent wins over affirmative on ambiguous replies like
	// "no, don't do it": refusing is the safe reading.
	switch {
	case negativeRe.MatchString(transcript):
		act := *g.pending
		g.pending = nil
		g.coord.Cancel(timers.PurposeConfirmTimeout)
		g.mu.Unlock()
		metricOutcomes.WithLabelValues(string(OutcomeCancelled)).Inc()
		return OutcomeCancelled, act, true

	case affirmativeRe.MatchString(transcript):
		act := *g.pending
		g.pending = nil
		g.coord.Cancel(timers.PurposeConfirmTimeout)
		g.mu.Unlock()
		metricOutcomes.WithLabelValues(string(OutcomeConfirmed)).Inc()
		return OutcomeConfirmed, act, true

	default:
		act := *g.pending
		g.armTimeout(g.episode)
		g.mu.Unlock()
		metricOutcomes.WithLabelValues(string(OutcomeUnclear)).Inc()
		return OutcomeUnclear, act, true
	}
}

// Clear discards any pending action without a spoken outcome (session
// teardown). Idempotent.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
	g.coord.Cancel(timers.PurposeConfirmTimeout)
}
