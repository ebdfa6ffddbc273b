package recognition

import (
	"context"
	"errors"
)

// Engine error codes reported by underlying recognition engines. The first
// two are expected in normal operation and are swallowed; the rest surface
// once on the user-visible channel.
const (
	ErrCodeNoSpeech     = "no-speech"
	ErrCodeAborted      = "aborted"
	ErrCodeNotAllowed   = "not-allowed"
	ErrCodeAudioCapture = "audio-capture"
	ErrCodeNetwork      = "network"
)

// ErrAlreadyStarted is returned by engines when start is called while a
// recognition pass is already running. The controller swallows it; duplicate
// starts are a no-op, not a failure.
var ErrAlreadyStarted = errors.New("recognition engine already started")

// ErrVoiceDisabled is returned once engine initialization has failed fatally
// and voice features are disabled for the rest of the session.
var ErrVoiceDisabled = errors.New("voice features disabled for this session")

// Engine is one underlying recognition engine. The platform may or may not
// provide one; results, end, and error events arrive asynchronously through
// the controller's Handle* methods.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EngineFactory builds the engine lazily on the first start request.
type EngineFactory func() (Engine, error)
