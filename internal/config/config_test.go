package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("VOICE_MIN_CONFIDENCE")
	os.Unsetenv("VOICE_AUTO_STOP_SEC")
	os.Unsetenv("VOICE_CONFIRM_TIMEOUT_SEC")

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Voice.MinConfidence != 0.35 {
		t.Fatalf("expected default confidence floor 0.35, got %v", c.Voice.MinConfidence)
	}
	if c.Voice.AutoStopSec != 8 {
		t.Fatalf("expected default auto stop 8s, got %d", c.Voice.AutoStopSec)
	}
	if c.Voice.ConfirmTimeoutSec != 15 {
		t.Fatalf("expected default confirmation timeout 15s, got %d", c.Voice.ConfirmTimeoutSec)
	}
	if c.Voice.ConfirmStopSec <= c.Voice.AutoStopSec {
		t.Fatalf("confirmation auto stop should be longer than normal auto stop")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("VOICE_MIN_CONFIDENCE", "0.5")
	os.Setenv("VOICE_CONTINUOUS", "true")
	defer os.Unsetenv("VOICE_MIN_CONFIDENCE")
	defer os.Unsetenv("VOICE_CONTINUOUS")

	c := Load()

	if c.Voice.MinConfidence != 0.5 {
		t.Fatalf("expected confidence floor 0.5, got %v", c.Voice.MinConfidence)
	}
	if !c.Voice.Continuous {
		t.Fatalf("expected continuous mode enabled")
	}
}

func TestLoadCriticalPatterns(t *testing.T) {
	os.Setenv("VOICE_CRITICAL_PATTERNS", `\blab\b, \bfloor\b`)
	defer os.Unsetenv("VOICE_CRITICAL_PATTERNS")

	c := Load()

	if len(c.Voice.CriticalPatterns) != 2 {
		t.Fatalf("expected 2 extra patterns, got %v", c.Voice.CriticalPatterns)
	}
	if c.Voice.CriticalPatterns[1] != `\bfloor\b` {
		t.Fatalf("patterns should be trimmed, got %q", c.Voice.CriticalPatterns[1])
	}
}
