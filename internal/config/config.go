package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Voice struct {
		Language          string
		Continuous        bool
		MinTranscript     int
		MaxTranscript     int
		MinConfidence     float64
		AutoStopSec       int
		ConfirmStopSec    int
		ConfirmTimeoutSec int
		RestartAfterTTSMs int
		CriticalPatterns  []string
	}
	Executor struct {
		BaseURL    string
		TimeoutSec int
		MaxRetries int
		BackoffMs  int
	}
	TTS struct {
		Enabled      bool
		CloudAPIKey  string
		CloudVoiceID string
		Rate         float64
		Volume       float64
	}
	Panel struct {
		TokenSecret   string
		TokenExpMin   int
		TokenSkewSecs int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("voice.language", "en-US")
	v.SetDefault("voice.continuous", false)
	v.SetDefault("voice.min_transcript", 2)
	v.SetDefault("voice.max_transcript", 200)
	v.SetDefault("voice.min_confidence", 0.35)
	v.SetDefault("voice.auto_stop_sec", 8)
	v.SetDefault("voice.confirm_stop_sec", 12)
	v.SetDefault("voice.confirm_timeout_sec", 15)
	v.SetDefault("voice.restart_after_tts_ms", 300)

	v.SetDefault("executor.timeout_sec", 10)
	v.SetDefault("executor.max_retries", 2)
	v.SetDefault("executor.backoff_ms", 400)

	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.rate", 1.0)
	v.SetDefault("tts.volume", 1.0)

	v.SetDefault("panel.token_exp_min", 720)
	v.SetDefault("panel.token_skew_secs", 60)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("voice.language", "VOICE_LANGUAGE")
	v.BindEnv("voice.continuous", "VOICE_CONTINUOUS")
	v.BindEnv("voice.min_transcript", "VOICE_MIN_TRANSCRIPT")
	v.BindEnv("voice.max_transcript", "VOICE_MAX_TRANSCRIPT")
	v.BindEnv("voice.min_confidence", "VOICE_MIN_CONFIDENCE")
	v.BindEnv("voice.auto_stop_sec", "VOICE_AUTO_STOP_SEC")
	v.BindEnv("voice.confirm_stop_sec", "VOICE_CONFIRM_STOP_SEC")
	v.BindEnv("voice.confirm_timeout_sec", "VOICE_CONFIRM_TIMEOUT_SEC")
	v.BindEnv("voice.restart_after_tts_ms", "VOICE_RESTART_AFTER_TTS_MS")
	v.BindEnv("voice.critical_patterns", "VOICE_CRITICAL_PATTERNS")

	v.BindEnv("executor.base_url", "EXECUTOR_BASE_URL")
	v.BindEnv("executor.timeout_sec", "EXECUTOR_TIMEOUT_SEC")
	v.BindEnv("executor.max_retries", "EXECUTOR_MAX_RETRIES")
	v.BindEnv("executor.backoff_ms", "EXECUTOR_BACKOFF_MS")

	v.BindEnv("tts.enabled", "TTS_ENABLED")
	v.BindEnv("tts.cloud_api_key", "TTS_CLOUD_API_KEY")
	v.BindEnv("tts.cloud_voice_id", "TTS_CLOUD_VOICE_ID")
	v.BindEnv("tts.rate", "TTS_RATE")
	v.BindEnv("tts.volume", "TTS_VOLUME")

	v.BindEnv("panel.token_secret", "PANEL_TOKEN_SECRET")
	v.BindEnv("panel.token_exp_min", "PANEL_TOKEN_EXP_MIN")
	v.BindEnv("panel.token_skew_secs", "PANEL_TOKEN_SKEW_SECS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Voice.Language = v.GetString("voice.language")
	c.Voice.Continuous = v.GetBool("voice.continuous")
	c.Voice.MinTranscript = v.GetInt("voice.min_transcript")
	c.Voice.MaxTranscript = v.GetInt("voice.max_transcript")
	c.Voice.MinConfidence = v.GetFloat64("voice.min_confidence")
	c.Voice.AutoStopSec = v.GetInt("voice.auto_stop_sec")
	c.Voice.ConfirmStopSec = v.GetInt("voice.confirm_stop_sec")
	c.Voice.ConfirmTimeoutSec = v.GetInt("voice.confirm_timeout_sec")
	c.Voice.RestartAfterTTSMs = v.GetInt("voice.restart_after_tts_ms")
	// Comma-separated extra regexes extending the built-in critical vocabulary
	if raw := v.GetString("voice.critical_patterns"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Voice.CriticalPatterns = append(c.Voice.CriticalPatterns, p)
			}
		}
	}

	c.Executor.BaseURL = v.GetString("executor.base_url")
	c.Executor.TimeoutSec = v.GetInt("executor.timeout_sec")
	c.Executor.MaxRetries = v.GetInt("executor.max_retries")
	c.Executor.BackoffMs = v.GetInt("executor.backoff_ms")

	c.TTS.Enabled = v.GetBool("tts.enabled")
	c.TTS.CloudAPIKey = v.GetString("tts.cloud_api_key")
	c.TTS.CloudVoiceID = v.GetString("tts.cloud_voice_id")
	c.TTS.Rate = v.GetFloat64("tts.rate")
	c.TTS.Volume = v.GetFloat64("tts.volume")

	c.Panel.TokenSecret = v.GetString("panel.token_secret")
	c.Panel.TokenExpMin = v.GetInt("panel.token_exp_min")
	c.Panel.TokenSkewSecs = v.GetInt("panel.token_skew_secs")

	log.Printf("config loaded: port=%s language=%s continuous=%v", c.Server.Port, c.Voice.Language, c.Voice.Continuous)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
