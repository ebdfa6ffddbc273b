package notify

import (
	"context"
	"log"
	"time"

	"github.com/autovolt/voice-agent/internal/panelws"
	"github.com/autovolt/voice-agent/internal/store"
	"github.com/autovolt/voice-agent/internal/types"
)

// Notifier is the user-visible channel: toast notifications and the textual
// transcript panel. It doubles as the terminal fallback when no TTS backend
// is available.
type Notifier interface {
	Toast(sessionID, level, msg string)
	ShowText(sessionID, text string)
	StateChanged(sessionID string, state types.SessionState, reason string)
}

// Panel delivers notifications to the connected dashboard panel and mirrors
// them into the session event feed so the activity view survives reconnects.
type Panel struct {
	reg   *panelws.Registry
	store *store.Store
}

func NewPanel(reg *panelws.Registry, st *store.Store) *Panel {
	return &Panel{reg: reg, store: st}
}

func (p *Panel) Toast(sessionID, level, msg string) {
	p.store.AppendEvent(sessionID, "toast", map[string]any{"level": level, "message": msg})
	p.send(sessionID, panelws.Message{Type: "toast", Code: level, Text: msg})
}

func (p *Panel) ShowText(sessionID, text string) {
	p.store.AppendEvent(sessionID, "text_fallback", map[string]any{"text": text})
	p.send(sessionID, panelws.Message{Type: "show_text", Text: text})
}

func (p *Panel) StateChanged(sessionID string, state types.SessionState, reason string) {
	p.store.SetState(sessionID, state)
	p.store.AppendEvent(sessionID, "state", map[string]any{"state": string(state), "reason": reason})
	p.send(sessionID, panelws.Message{Type: "state", Text: string(state), Code: reason})
}

func (p *Panel) send(sessionID string, msg panelws.Message) {
	msg.TsMs = time.Now().UnixMilli()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.reg.SendJSON(ctx, sessionID, msg); err != nil && err != panelws.ErrNoPanel {
		log.Printf("[notify] send %s: %v", msg.Type, err)
	}
}
