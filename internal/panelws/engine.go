package panelws

import (
	"context"
	"time"
)

// Engine drives the panel's recognition engine over the websocket bridge.
// It satisfies the recognition engine contract; results come back as panel
// frames and are routed to the controller by the dispatcher.
type Engine struct {
	reg       *Registry
	sessionID string
	language  string
}

func NewEngine(reg *Registry, sessionID, language string) *Engine {
	return &Engine{reg: reg, sessionID: sessionID, language: language}
}

func (e *Engine) Start(ctx context.Context) error {
	return e.reg.SendJSON(ctx, e.sessionID, Message{
		Type:    "listen_start",
		TsMs:    time.Now().UnixMilli(),
		Payload: map[string]any{"language": e.language, "interim": true},
	})
}

func (e *Engine) Stop(ctx context.Context) error {
	return e.reg.SendJSON(ctx, e.sessionID, Message{
		Type: "listen_stop",
		TsMs: time.Now().UnixMilli(),
	})
}
