package synth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/autovolt/voice-agent/internal/panelws"
)

// Sender pushes JSON frames to a session's panel.
type Sender interface {
	SendJSON(ctx context.Context, sessionID string, v any) error
}

// ErrSpeakTimeout is returned when the panel never acknowledges an
// utterance.
var ErrSpeakTimeout = errors.New("panel did not acknowledge utterance")

const defaultAckTimeout = 30 * time.Second

// BridgeBackend plays an utterance through one of the panel's own TTS
// engines (native platform, plugin bridge, or in-browser). One backend
// instance exists per probed engine identifier; they share an AckTable.
type BridgeBackend struct {
	id         string
	sessionID  string
	sender     Sender
	acks       *AckTable
	ackTimeout time.Duration
}

func NewBridgeBackend(id, sessionID string, sender Sender, acks *AckTable) *BridgeBackend {
	return &BridgeBackend{id: id, sessionID: sessionID, sender: sender, acks: acks, ackTimeout: defaultAckTimeout}
}

func (b *BridgeBackend) ID() string { return b.id }

func (b *BridgeBackend) Speak(ctx context.Context, text string, opts Options) error {
	uid := uuid.New().String()
	ch := b.acks.register(uid)
	defer b.acks.drop(uid)

	err := b.sender.SendJSON(ctx, b.sessionID, panelws.Message{
		Type:        "speak",
		TsMs:        time.Now().UnixMilli(),
		UtteranceID: uid,
		Text:        text,
		Payload: map[string]any{
			"engine":   b.id,
			"rate":     opts.Rate,
			"volume":   opts.Volume,
			"voice":    opts.Voice,
			"language": opts.Language,
		},
	})
	if err != nil {
		return err
	}

	t := time.NewTimer(b.ackTimeout)
	defer t.Stop()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		// Best-effort: tell the panel to cut the utterance short.
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = b.sender.SendJSON(cctx, b.sessionID, panelws.Message{Type: "speak_cancel", UtteranceID: uid})
		cancel()
		return ctx.Err()
	case <-t.C:
		return ErrSpeakTimeout
	}
}
