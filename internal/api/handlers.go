package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/autovolt/voice-agent/internal/auth"
	"github.com/autovolt/voice-agent/internal/config"
	"github.com/autovolt/voice-agent/internal/dispatch"
	"github.com/autovolt/voice-agent/internal/health"
	"github.com/autovolt/voice-agent/internal/store"
	"github.com/autovolt/voice-agent/internal/types"
)

type Handlers struct {
	cfg   config.Config
	store *store.Store
	disp  *dispatch.Dispatcher
}

func NewHandlers(cfg config.Config, st *store.Store, d *dispatch.Dispatcher) *Handlers {
	return &Handlers{cfg: cfg, store: st, disp: d}
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	status := health.CheckAll(ctx, h.cfg)
	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Panel.TokenSecret == "" {
		http.Error(w, "missing panel token secret", http.StatusBadRequest)
		return
	}
	id := uuid.New().String()
	exp := time.Now().Add(time.Duration(h.cfg.Panel.TokenExpMin) * time.Minute).Unix()
	token := auth.GeneratePanelToken(h.cfg.Panel.TokenSecret, id, exp)

	sess := &types.Session{
		ID:         id,
		State:      types.StateIdle,
		Language:   h.cfg.Voice.Language,
		Continuous: h.cfg.Voice.Continuous,
		PanelToken: token,
		CreatedAt:  time.Now().UTC(),
	}
	_ = h.store.CreateSession(sess)
	h.disp.CreateSession(id)
	h.store.AppendEvent(id, "session_created", map[string]any{"language": sess.Language})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id":  id,
		"panel_token": token,
		"language":    sess.Language,
		"continuous":  sess.Continuous,
	})
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.store.GetSession(id)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}

func (h *Handlers) HandleToggle(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	listening, err := h.disp.Toggle(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.store.AppendEvent(id, "listen_toggled", map[string]any{"listening": listening})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "listening": listening})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": h.store.ListEvents(id)})
}

func (h *Handlers) HandleListHistory(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"commands": h.store.ListCommands(id)})
}

func (h *Handlers) HandleCapabilities(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"capabilities": h.disp.Capabilities(id)})
}

func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	h.disp.RemoveSession(r.Context(), id)
	h.store.DeleteSession(id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}
