package types

import "time"

// SessionState models the voice session lifecycle. Exactly one state is
// active at any instant.
type SessionState string

const (
	StateIdle                     SessionState = "idle"
	StateListening                SessionState = "listening"
	StateListeningForConfirmation SessionState = "listening_confirmation"
	StateProcessing               SessionState = "processing"
	StateSpeaking                 SessionState = "speaking"
)

// Event is one entry in a session's activity feed.
type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Session is the externally observed voice session.
type Session struct {
	ID         string       `json:"session_id"`
	State      SessionState `json:"state"`
	Language   string       `json:"language"`
	Continuous bool         `json:"continuous"`

	LastTranscript string    `json:"last_transcript,omitempty"`
	PanelToken     string    `json:"panel_token,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CommandResult is what the command executor returns for one command.
// Success=false means the backend understood but refused the command;
// transport-level failures are reported as errors, not results.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CommandRecord is one entry in a session's command history.
type CommandRecord struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Confirmed  bool      `json:"confirmed,omitempty"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Ts         time.Time `json:"timestamp"`
}
