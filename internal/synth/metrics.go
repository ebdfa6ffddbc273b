package synth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_tts_attempts_total",
		Help: "TTS backend attempts by result",
	}, []string{"backend", "result"})

	metricTextFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_tts_text_fallbacks_total",
		Help: "Speak calls that fell back to visual text",
	})

	metricSpeakLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_tts_speak_ms",
		Help:    "Latency from speak request to spoken outcome",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	})
)
