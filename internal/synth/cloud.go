package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/autovolt/voice-agent/internal/panelws"
	"github.com/autovolt/voice-agent/internal/probe"
)

// ErrCloudNotConfigured is returned when the cloud synthesizer has no API
// key; the router falls through to the next backend.
var ErrCloudNotConfigured = errors.New("cloud tts not configured")

const cloudAudioLimit = 4 << 20 // response audio cap

// CloudBackend synthesizes server-side through an ElevenLabs-style REST API
// and streams the resulting audio to the panel for playback. It ranks last
// among spoken backends: panel-local engines are cheaper and lower-latency.
type CloudBackend struct {
	http      *http.Client
	apiKey    string
	voiceID   string
	base      string
	sessionID string
	sender    Sender
}

func NewCloudBackend(apiKey, voiceID, sessionID string, sender Sender) *CloudBackend {
	return &CloudBackend{
		http:      &http.Client{Timeout: 20 * time.Second},
		apiKey:    apiKey,
		voiceID:   voiceID,
		base:      "https://api.elevenlabs.io/v1",
		sessionID: sessionID,
		sender:    sender,
	}
}

func (c *CloudBackend) ID() string { return probe.SynthCloud }

// SetBaseURL overrides the API endpoint (tests).
func (c *CloudBackend) SetBaseURL(base string) { c.base = base }

func (c *CloudBackend) Speak(ctx context.Context, text string, opts Options) error {
	if c.apiKey == "" || c.voiceID == "" {
		return ErrCloudNotConfigured
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream", c.base, c.voiceID)
	body, _ := json.Marshal(map[string]any{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("accept", "audio/mpeg")
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cloud tts status=%d body=%s", resp.StatusCode, string(b))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, cloudAudioLimit))
	if err != nil {
		return err
	}

	return c.sender.SendJSON(ctx, c.sessionID, panelws.Message{
		Type: "audio",
		TsMs: time.Now().UnixMilli(),
		Payload: map[string]any{
			"format": "audio/mpeg",
			"data":   base64.StdEncoding.EncodeToString(audio),
		},
	})
}
