package panelws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/autovolt/voice-agent/internal/auth"
	"github.com/autovolt/voice-agent/internal/config"
	"github.com/autovolt/voice-agent/internal/store"

	ws "nhooyr.io/websocket"
)

// ErrNoPanel is returned when a command is sent to a session with no panel
// attached.
var ErrNoPanel = errors.New("no panel connected for session")

// Message is the JSON frame exchanged with the dashboard panel.
//
// Panel → server types: hello, result, end, error, tts_done, tts_error.
// Server → panel types: listen_start, listen_stop, speak, audio, toast,
// show_text, state.
type Message struct {
	Type        string         `json:"type"`
	TsMs        int64          `json:"ts_ms,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	UtteranceID string         `json:"utterance_id,omitempty"`
	Text        string         `json:"text,omitempty"`
	Final       bool           `json:"final,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	Code        string         `json:"code,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

type Server struct {
	Cfg   config.Config
	Store *store.Store
	Reg   *Registry

	// OnMessage receives every inbound panel frame after it is logged.
	OnMessage func(sessionID string, msg Message)
	// OnDisconnect fires when a panel drops.
	OnDisconnect func(sessionID string)
}

func NewServer(cfg config.Config, st *store.Store, reg *Registry) *Server {
	return &Server{Cfg: cfg, Store: st, Reg: reg}
}

func (s *Server) HandlePanelWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	if s.Store.GetSession(sessionID) == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	// Auth: header or query param (browsers cannot set ws headers)
	token := q.Get("token")
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		token = strings.TrimPrefix(authz, "Bearer ")
	}
	if s.Cfg.Panel.TokenSecret == "" {
		http.Error(w, "panel auth not configured", http.StatusUnauthorized)
		return
	}
	if _, _, err := auth.ValidatePanelToken(s.Cfg.Panel.TokenSecret, token, sessionID, time.Now(), s.Cfg.Panel.TokenSkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[panelws] accept: %v", err)
		return
	}
	replaced := s.Reg.Replace(sessionID, c)
	if replaced {
		s.Store.AppendEvent(sessionID, "panel_replaced", nil)
	}
	s.Store.AppendEvent(sessionID, "panel_connected", nil)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Store.AppendEvent(sessionID, "panel_msg_invalid", map[string]any{"error": err.Error()})
			continue
		}
		s.logInbound(sessionID, msg)
		if s.OnMessage != nil {
			s.OnMessage(sessionID, msg)
		}
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(sessionID)
	s.Store.AppendEvent(sessionID, "panel_disconnected", nil)
	if s.OnDisconnect != nil {
		s.OnDisconnect(sessionID)
	}
}

// logInbound appends notable panel frames to the session event feed.
// High-frequency frames (interim results) are skipped.
func (s *Server) logInbound(sessionID string, msg Message) {
	switch msg.Type {
	case "result":
		if !msg.Final {
			return
		}
		s.Store.AppendEvent(sessionID, "transcript_final", map[string]any{"text": msg.Text, "confidence": msg.Confidence})
	case "hello":
		s.Store.AppendEvent(sessionID, "panel_hello", msg.Payload)
	case "error":
		s.Store.AppendEvent(sessionID, "engine_error", map[string]any{"code": msg.Code})
	}
}
